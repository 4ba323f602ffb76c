package epadoc

import (
	"runtime"

	"github.com/rs/zerolog"

	"github.com/gofhir/epadoc/pkg/loader"
	"github.com/gofhir/epadoc/pkg/logger"
)

// Option configures the validation engine.
type Option func(*Options)

// Options holds all configuration for the validation engine.
type Options struct {
	Logger zerolog.Logger

	// Profile package source. The first available source wins:
	// PackageData, PackageFile, the package cache dir, then PackageURL.
	Package         loader.PackageRef
	PackageCacheDir string
	PackageFile     string
	PackageURL      string
	PackageData     []byte
	SkipPackage     bool

	// Validation flags
	ValidateTerminology     bool
	ErrorForUnknownProfiles bool
	NoExtensibleWarnings    bool

	// Caching and concurrency
	EnableCache bool
	Metrics     *Metrics
	WorkerCount int
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		Logger:               logger.Default(),
		Package:              DefaultPackage(),
		ValidateTerminology:  true,
		NoExtensibleWarnings: true,
		EnableCache:          true,
		WorkerCount:          runtime.NumCPU(),
	}
}

// WithLogger sets the logger used during startup and for checker faults.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// --- Profile package ---

// WithPackage selects the profile package by id and version.
func WithPackage(ref loader.PackageRef) Option {
	return func(o *Options) {
		if ref.Name != "" {
			o.Package = ref
		}
	}
}

// WithPackageCacheDir sets the directory holding unpacked "<id>#<version>" packages.
func WithPackageCacheDir(dir string) Option {
	return func(o *Options) {
		o.PackageCacheDir = dir
	}
}

// WithPackageFile loads the profile package from a local .tgz file.
func WithPackageFile(path string) Option {
	return func(o *Options) {
		o.PackageFile = path
	}
}

// WithPackageURL downloads the profile package .tgz at startup when no
// local source is available.
func WithPackageURL(url string) Option {
	return func(o *Options) {
		o.PackageURL = url
	}
}

// WithPackageData loads the profile package from in-memory .tgz bytes.
func WithPackageData(data []byte) Option {
	return func(o *Options) {
		o.PackageData = data
	}
}

// WithoutPackage disables the profile-package checker. It stays in the
// chain as a no-op.
func WithoutPackage() Option {
	return func(o *Options) {
		o.SkipPackage = true
	}
}

// --- Validation flags ---

// WithTerminology enables or disables both terminology checkers.
func WithTerminology(enable bool) Option {
	return func(o *Options) {
		o.ValidateTerminology = enable
	}
}

// WithErrorForUnknownProfiles reports undeclared profiles as ERROR instead of WARNING.
func WithErrorForUnknownProfiles(enable bool) Option {
	return func(o *Options) {
		o.ErrorForUnknownProfiles = enable
	}
}

// WithExtensibleWarnings reports codes outside extensible bindings as WARNING.
func WithExtensibleWarnings(enable bool) Option {
	return func(o *Options) {
		o.NoExtensibleWarnings = !enable
	}
}

// --- Caching and concurrency ---

// WithCache enables or disables the checker result cache.
func WithCache(enable bool) Option {
	return func(o *Options) {
		o.EnableCache = enable
	}
}

// WithMetrics records validation metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithWorkerCount sets the number of workers for batch validation.
// Defaults to runtime.NumCPU().
func WithWorkerCount(count int) Option {
	return func(o *Options) {
		if count > 0 {
			o.WorkerCount = count
		}
	}
}

// --- Presets ---

// StrictOptions reports unknown profiles and extensible binding misses.
func StrictOptions() []Option {
	return []Option{
		WithTerminology(true),
		WithErrorForUnknownProfiles(true),
		WithExtensibleWarnings(true),
	}
}

// OfflineOptions never touches the network or the package cache.
func OfflineOptions() []Option {
	return []Option{
		WithoutPackage(),
		WithPackageURL(""),
	}
}

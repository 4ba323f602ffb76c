// Package loader loads versioned FHIR rule packages from the NPM package
// cache, local .tgz files, in-memory archives, or remote URLs.
package loader

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ErrPackageNotFound is returned when no source could provide a package.
var ErrPackageNotFound = errors.New("package not found")

// DefaultPackagePath returns the default FHIR package cache path.
func DefaultPackagePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".fhir", "packages")
}

// PackageRef identifies a package by id and version.
type PackageRef struct {
	Name    string
	Version string
}

// String returns the package spec in "name#version" format.
func (p PackageRef) String() string {
	return fmt.Sprintf("%s#%s", p.Name, p.Version)
}

// ParsePackageRef parses "name#version" into a PackageRef.
func ParsePackageRef(spec string) PackageRef {
	name, version, _ := strings.Cut(spec, "#")
	return PackageRef{Name: name, Version: version}
}

// Package is a loaded rule package.
type Package struct {
	Name        string
	Version     string
	Path        string
	FHIRVersion string

	// Resources maps canonical URL and "resourceType/id" to raw JSON.
	Resources map[string][]byte

	byType map[string][]string // resourceType -> file names, sorted
	files  map[string][]byte   // file name -> raw JSON
}

// Ref returns the identity of the package.
func (p *Package) Ref() PackageRef {
	return PackageRef{Name: p.Name, Version: p.Version}
}

// Find returns the resource with the given canonical URL or "type/id" key.
// A trailing "|version" on a canonical URL is ignored.
func (p *Package) Find(key string) ([]byte, bool) {
	if data, ok := p.Resources[key]; ok {
		return data, true
	}
	if i := strings.LastIndex(key, "|"); i != -1 {
		data, ok := p.Resources[key[:i]]
		return data, ok
	}
	return nil, false
}

// OfType returns every resource of the given type in file-name order.
func (p *Package) OfType(resourceType string) [][]byte {
	names := p.byType[resourceType]
	out := make([][]byte, 0, len(names))
	for _, name := range names {
		out = append(out, p.files[name])
	}
	return out
}

// Len returns the number of resource files in the package.
func (p *Package) Len() int {
	return len(p.files)
}

func newPackage() *Package {
	return &Package{
		Resources: make(map[string][]byte),
		byType:    make(map[string][]string),
		files:     make(map[string][]byte),
	}
}

// add indexes one resource file. Files that are not FHIR resources are skipped.
func (p *Package) add(name string, data []byte) {
	var resource struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
		URL          string `json:"url"`
	}
	if err := json.Unmarshal(data, &resource); err != nil || resource.ResourceType == "" {
		return
	}

	p.files[name] = data
	p.byType[resource.ResourceType] = append(p.byType[resource.ResourceType], name)
	if resource.URL != "" {
		p.Resources[resource.URL] = data
	}
	if resource.ID != "" {
		p.Resources[resource.ResourceType+"/"+resource.ID] = data
	}
}

func (p *Package) seal() {
	for _, names := range p.byType {
		sort.Strings(names)
	}
}

// PackageManifest represents the package.json of a FHIR NPM package.
type PackageManifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	FHIRVersion  string            `json:"fhirVersion,omitempty"`
	FHIRVersions []string          `json:"fhirVersions,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func (m PackageManifest) fhirVersion() string {
	if m.FHIRVersion != "" {
		return m.FHIRVersion
	}
	if len(m.FHIRVersions) > 0 {
		return m.FHIRVersions[0]
	}
	return ""
}

// Loader loads packages from a cache directory or archives.
type Loader struct {
	basePath string
	client   *http.Client
}

// NewLoader creates a new Loader with the given cache path.
// An empty path selects DefaultPackagePath.
func NewLoader(basePath string) *Loader {
	if basePath == "" {
		basePath = DefaultPackagePath()
	}
	return &Loader{
		basePath: basePath,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// BasePath returns the cache path.
func (l *Loader) BasePath() string {
	return l.basePath
}

// Source lists the places a package may be loaded from.
type Source struct {
	Data []byte // .tgz bytes
	File string // .tgz path
	URL  string // .tgz download
}

// Load resolves ref from the first available source in the order
// Data, File, cache directory, URL.
func (l *Loader) Load(ctx context.Context, ref PackageRef, src Source) (*Package, error) {
	var errs []error

	try := func(pkg *Package, err error) (*Package, bool) {
		if err != nil {
			errs = append(errs, err)
			return nil, false
		}
		if err := checkIdentity(pkg, ref); err != nil {
			errs = append(errs, err)
			return nil, false
		}
		return pkg, true
	}

	if len(src.Data) > 0 {
		if pkg, ok := try(l.LoadFromTgzData(src.Data)); ok {
			return pkg, nil
		}
	}
	if src.File != "" {
		if pkg, ok := try(l.LoadFromTgz(src.File)); ok {
			return pkg, nil
		}
	}
	if pkg, ok := try(l.LoadPackageRef(ref)); ok {
		return pkg, nil
	}
	if src.URL != "" {
		if pkg, ok := try(l.LoadFromURL(ctx, src.URL)); ok {
			return pkg, nil
		}
	}

	return nil, fmt.Errorf("%w: %s: %w", ErrPackageNotFound, ref, errors.Join(errs...))
}

// checkIdentity rejects archives that carry a different package.
// An empty ref version accepts any version.
func checkIdentity(pkg *Package, ref PackageRef) error {
	if ref.Name != "" && pkg.Name != ref.Name {
		return fmt.Errorf("%s contains package %s, want %s", pkg.Path, pkg.Name, ref.Name)
	}
	if ref.Version != "" && pkg.Version != ref.Version {
		return fmt.Errorf("%s contains version %s, want %s", pkg.Path, pkg.Version, ref.Version)
	}
	return nil
}

// LoadPackage loads an unpacked package "<base>/<name>#<version>/package".
func (l *Loader) LoadPackage(name, version string) (*Package, error) {
	pkgDir := filepath.Join(l.basePath, fmt.Sprintf("%s#%s", name, version))

	if _, err := os.Stat(pkgDir); err != nil {
		return nil, fmt.Errorf("package %s#%s not found at %s", name, version, pkgDir)
	}

	packageDir := filepath.Join(pkgDir, "package")
	manifestData, err := os.ReadFile(filepath.Join(packageDir, "package.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read package manifest: %w", err)
	}

	var manifest PackageManifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse package manifest: %w", err)
	}

	entries, err := os.ReadDir(packageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	pkg := newPackage()
	pkg.Name = manifest.Name
	pkg.Version = manifest.Version
	pkg.FHIRVersion = manifest.fhirVersion()
	pkg.Path = pkgDir

	for _, entry := range entries {
		if entry.IsDir() || !isResourceFile(entry.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(packageDir, entry.Name()))
		if err != nil {
			continue
		}
		pkg.add(entry.Name(), data)
	}
	pkg.seal()

	return pkg, nil
}

// LoadPackageRef loads a package from a PackageRef.
func (l *Loader) LoadPackageRef(ref PackageRef) (*Package, error) {
	return l.LoadPackage(ref.Name, ref.Version)
}

// ListPackages returns all "name#version" entries in the cache.
func (l *Loader) ListPackages() ([]string, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, err
	}

	var packages []string
	for _, entry := range entries {
		if entry.IsDir() && strings.Contains(entry.Name(), "#") {
			packages = append(packages, entry.Name())
		}
	}
	return packages, nil
}

// LoadFromTgz loads a package from a local .tgz file.
func (l *Loader) LoadFromTgz(tgzPath string) (*Package, error) {
	file, err := os.Open(tgzPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open tgz file: %w", err)
	}
	defer file.Close()

	return l.loadFromTgzReader(file, tgzPath)
}

// LoadFromTgzData loads a package from in-memory .tgz bytes.
func (l *Loader) LoadFromTgzData(data []byte) (*Package, error) {
	return l.loadFromTgzReader(bytes.NewReader(data), "<memory>")
}

// LoadFromURL downloads a .tgz package and loads it.
func (l *Loader) LoadFromURL(ctx context.Context, url string) (*Package, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download package from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download package: HTTP %d", resp.StatusCode)
	}

	return l.loadFromTgzReader(resp.Body, url)
}

// loadFromTgzReader loads a package from a gzipped tar stream.
func (l *Loader) loadFromTgzReader(reader io.Reader, source string) (*Package, error) {
	gzReader, err := gzip.NewReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	pkg := newPackage()
	var manifestData []byte

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry: %w", err)
		}
		if header.Typeflag == tar.TypeDir {
			continue
		}

		// Only the package/ folder holds resources; examples/ and other/ are ignored.
		name, ok := strings.CutPrefix(header.Name, "package/")
		if !ok || strings.Contains(name, "/") {
			continue
		}
		if name != "package.json" && !isResourceFile(name) {
			continue
		}

		data, err := io.ReadAll(tarReader)
		if err != nil {
			continue
		}
		if name == "package.json" {
			manifestData = data
			continue
		}
		pkg.add(name, data)
	}

	if manifestData == nil {
		return nil, fmt.Errorf("package.json not found in %s", source)
	}

	var manifest PackageManifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse package manifest: %w", err)
	}

	pkg.Name = manifest.Name
	pkg.Version = manifest.Version
	pkg.FHIRVersion = manifest.fhirVersion()
	pkg.Path = source
	pkg.seal()

	return pkg, nil
}

func isResourceFile(name string) bool {
	return strings.HasSuffix(name, ".json") && name != "package.json" && name != ".index.json"
}

// Package config loads the service configuration from the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/pkg/epa"
	"github.com/gofhir/epadoc/pkg/loader"
	"github.com/gofhir/epadoc/pkg/logger"
)

// Config is the service configuration.
type Config struct {
	Port     string `mapstructure:"PORT" validate:"required,numeric"`
	Env      string `mapstructure:"ENV" validate:"oneof=development test production"`
	LogLevel string `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn warning error off"`

	PackageID       string `mapstructure:"PACKAGE_ID" validate:"required"`
	PackageVersion  string `mapstructure:"PACKAGE_VERSION" validate:"required"`
	PackageCacheDir string `mapstructure:"PACKAGE_CACHE_DIR"`
	PackageFile     string `mapstructure:"PACKAGE_FILE"`
	PackageURL      string `mapstructure:"PACKAGE_URL" validate:"omitempty,url"`

	ValidationCache bool `mapstructure:"VALIDATION_CACHE"`
	Workers         int  `mapstructure:"WORKERS" validate:"min=1"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS" validate:"gte=0"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST" validate:"min=1"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"PACKAGE_ID", "PACKAGE_VERSION", "PACKAGE_CACHE_DIR", "PACKAGE_FILE", "PACKAGE_URL",
	"VALIDATION_CACHE", "WORKERS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

var validate = validator.New()

// Load reads the configuration. Environment variables override the file at
// path; a missing file is not an error. An empty path reads ".env".
func Load(path string) (*Config, error) {
	if path == "" {
		path = ".env"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PACKAGE_ID", epa.PackageID)
	v.SetDefault("PACKAGE_VERSION", epa.PackageVersion)
	v.SetDefault("PACKAGE_CACHE_DIR", loader.DefaultPackagePath())
	v.SetDefault("VALIDATION_CACHE", true)
	v.SetDefault("WORKERS", runtime.NumCPU())
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind explicitly so Unmarshal sees variables without a default.
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.Is(err, os.ErrNotExist) || errors.As(err, &notFound)
}

// Validate checks the field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.Join(strings.Fields(fe.Param()), ", "))
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "numeric":
		return field + " must be numeric"
	case "url":
		return field + " must be a URL"
	default:
		return field + " is invalid"
	}
}

// IsDev reports whether the service runs in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Logger builds the process logger. Development mode logs in console format.
func (c *Config) Logger() zerolog.Logger {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.New(os.Stderr, level, c.IsDev())
}

// Package returns the profile package identity.
func (c *Config) Package() loader.PackageRef {
	return loader.PackageRef{Name: c.PackageID, Version: c.PackageVersion}
}

// EngineOptions converts the configuration into engine options.
func (c *Config) EngineOptions(l zerolog.Logger) []epadoc.Option {
	return []epadoc.Option{
		epadoc.WithLogger(l),
		epadoc.WithPackage(c.Package()),
		epadoc.WithPackageCacheDir(c.PackageCacheDir),
		epadoc.WithPackageFile(c.PackageFile),
		epadoc.WithPackageURL(c.PackageURL),
		epadoc.WithCache(c.ValidationCache),
		epadoc.WithWorkerCount(c.Workers),
	}
}

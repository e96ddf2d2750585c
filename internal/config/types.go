// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rohanprabhu-jm/confinity/internal/container"
)

const (
	// EngineAuto probes the Docker API, then the docker and podman CLIs.
	EngineAuto EngineKind = "auto"
	// EngineDockerAPI talks to the Docker Engine API directly.
	EngineDockerAPI EngineKind = "docker-api"
	// EngineDocker drives the docker CLI.
	EngineDocker EngineKind = "docker"
	// EnginePodman drives the podman CLI.
	EnginePodman EngineKind = "podman"
)

var (
	// ErrInvalidEngineKind is returned when an EngineKind value is not recognized.
	ErrInvalidEngineKind = errors.New("invalid engine")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")

	logLevels = []string{"debug", "info", "warn", "error"}
)

type (
	// EngineKind selects the container engine implementation.
	EngineKind string

	// InvalidEngineKindError is returned when an EngineKind value is not recognized.
	InvalidEngineKindError struct {
		Value EngineKind
	}

	// Duration is a time.Duration that reads and writes Go duration strings ("1.5s").
	Duration time.Duration

	// Config holds the runtime configuration.
	Config struct {
		Engine             EngineKind        `json:"engine" mapstructure:"engine" toml:"engine" yaml:"engine"`
		EngineHost         string            `json:"engine_host,omitempty" mapstructure:"engine_host" toml:"engine_host,omitempty" yaml:"engine_host,omitempty"`
		ImageName          string            `json:"image_name" mapstructure:"image_name" toml:"image_name" yaml:"image_name"`
		BaseImage          string            `json:"base_image" mapstructure:"base_image" toml:"base_image" yaml:"base_image"`
		CleanupInterval    Duration          `json:"cleanup_interval" mapstructure:"cleanup_interval" toml:"cleanup_interval" yaml:"cleanup_interval"`
		CleanupConcurrency int               `json:"cleanup_concurrency" mapstructure:"cleanup_concurrency" toml:"cleanup_concurrency" yaml:"cleanup_concurrency"`
		LeakAfter          int               `json:"leak_after" mapstructure:"leak_after" toml:"leak_after" yaml:"leak_after"`
		CallTimeout        Duration          `json:"call_timeout" mapstructure:"call_timeout" toml:"call_timeout" yaml:"call_timeout"`
		Staging            StagingConfig     `json:"staging" mapstructure:"staging" toml:"staging" yaml:"staging"`
		Vendored           []string          `json:"vendored,omitempty" mapstructure:"vendored" toml:"vendored,omitempty" yaml:"vendored,omitempty"`
		VendoredSuffixes   map[string]string `json:"vendored_suffixes,omitempty" mapstructure:"vendored_suffixes" toml:"vendored_suffixes,omitempty" yaml:"vendored_suffixes,omitempty"`
		Log                LogConfig         `json:"log" mapstructure:"log" toml:"log" yaml:"log"`
	}

	// StagingConfig controls where bundles are staged and whether they survive shutdown.
	StagingConfig struct {
		// Dir is the parent of staging directories; empty uses the system temp dir.
		Dir  string `json:"dir,omitempty" mapstructure:"dir" toml:"dir,omitempty" yaml:"dir,omitempty"`
		Keep bool   `json:"keep" mapstructure:"keep" toml:"keep" yaml:"keep"`
	}

	// LogConfig controls CLI logging.
	LogConfig struct {
		Level string `json:"level" mapstructure:"level" toml:"level" yaml:"level"`
	}

	// InvalidConfigError collects every field that failed validation.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

func (e *InvalidEngineKindError) Error() string {
	return fmt.Sprintf("invalid engine %q (valid: auto, docker-api, docker, podman)", e.Value)
}

func (e *InvalidEngineKindError) Unwrap() error { return ErrInvalidEngineKind }

func (k EngineKind) String() string { return string(k) }

// Validate returns an error if k is not a known engine kind.
func (k EngineKind) Validate() error {
	switch k {
	case EngineAuto, EngineDockerAPI, EngineDocker, EnginePodman:
		return nil
	default:
		return &InvalidEngineKindError{Value: k}
	}
}

// ContainerType maps k to the engine type NewEngine expects. EngineAuto has none.
func (k EngineKind) ContainerType() (container.EngineType, bool) {
	switch k {
	case EngineDockerAPI:
		return container.EngineTypeDockerAPI, true
	case EngineDocker:
		return container.EngineTypeDocker, true
	case EnginePodman:
		return container.EngineTypePodman, true
	default:
		return "", false
	}
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate checks the constraints that hold regardless of where the values came from.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := container.ImageTag(c.ImageName).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("image_name: %w", err))
	}
	if strings.TrimSpace(c.BaseImage) == "" {
		errs = append(errs, errors.New("base_image: must not be empty"))
	}
	if c.CleanupInterval < 0 {
		errs = append(errs, fmt.Errorf("cleanup_interval: must not be negative, got %s", c.CleanupInterval))
	}
	if c.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("call_timeout: must not be negative, got %s", c.CallTimeout))
	}
	if c.CleanupConcurrency < 1 {
		errs = append(errs, fmt.Errorf("cleanup_concurrency: must be at least 1, got %d", c.CleanupConcurrency))
	}
	if c.LeakAfter < 1 {
		errs = append(errs, fmt.Errorf("leak_after: must be at least 1, got %d", c.LeakAfter))
	}
	for from, to := range c.VendoredSuffixes {
		if !strings.HasPrefix(from, ".") || !strings.HasPrefix(to, ".") {
			errs = append(errs, fmt.Errorf("vendored_suffixes: %q -> %q: suffixes must start with a dot", from, to))
		}
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level: %q is not one of %s", c.Log.Level, strings.Join(logLevels, ", ")))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Engine:             EngineAuto,
		ImageName:          "confinity-local",
		BaseImage:          "gcr.io/distroless/static-debian12",
		CleanupInterval:    Duration(1500 * time.Millisecond),
		CleanupConcurrency: 4,
		LeakAfter:          5,
		VendoredSuffixes: map[string]string{
			".sox":  ".so",
			".jarx": ".jar",
		},
		Log: LogConfig{Level: "info"},
	}
}

// SPDX-License-Identifier: MPL-2.0

package image

import (
	"io"
	"log/slog"
	"time"
)

const (
	// DefaultBaseImage is a minimal image without shell or package manager.
	DefaultBaseImage = "gcr.io/distroless/static-debian12"

	// UnitRoot is where the unit archive is extracted inside the image.
	UnitRoot = "/confinity"
	// LibRoot is where vendored libraries are copied inside the image.
	LibRoot = "/libs"

	// LabelDigest carries the bundle digest on the built image.
	LabelDigest = "io.confinity.bundle.digest"
	// LabelUnits carries the number of bundled units.
	LabelUnits = "io.confinity.bundle.units"
)

type (
	// Config holds image builder settings.
	Config struct {
		// BaseImage is the image the sandbox image starts from.
		// Default: gcr.io/distroless/static-debian12
		BaseImage string

		// NoCache disables the engine's build cache.
		NoCache bool

		// Retries is the number of attempts for transient engine failures.
		// Default: 3
		Retries int

		// Backoff is the delay before the first retry, doubled after each attempt.
		// Default: 1s
		Backoff time.Duration

		// Labels are added to the image besides the bundle labels.
		Labels map[string]string

		// Output receives engine build progress (optional).
		Output io.Writer

		Logger *slog.Logger
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		BaseImage: DefaultBaseImage,
		Retries:   3,
		Backoff:   time.Second,
		Logger:    slog.Default(),
	}
}

// WithBaseImage returns an Option that sets the base image.
func WithBaseImage(ref string) Option {
	return func(c *Config) {
		if ref != "" {
			c.BaseImage = ref
		}
	}
}

// WithNoCache returns an Option that disables the build cache.
func WithNoCache(noCache bool) Option {
	return func(c *Config) {
		c.NoCache = noCache
	}
}

// WithRetry returns an Option that sets the retry policy for transient failures.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Config) {
		c.Retries = max(attempts, 1)
		c.Backoff = backoff
	}
}

// WithLabels returns an Option that adds image labels.
func WithLabels(labels map[string]string) Option {
	return func(c *Config) {
		c.Labels = labels
	}
}

// WithOutput returns an Option that forwards engine build progress to w.
func WithOutput(w io.Writer) Option {
	return func(c *Config) {
		c.Output = w
	}
}

// WithLogger returns an Option that sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

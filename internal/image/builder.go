// SPDX-License-Identifier: MPL-2.0

package image

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rohanprabhu-jm/confinity/internal/bundle"
	"github.com/rohanprabhu-jm/confinity/internal/container"
	"github.com/rohanprabhu-jm/confinity/internal/issue"
)

// ErrImageBuild is the sentinel error wrapped by Error.
var ErrImageBuild = errors.New("image build failed")

type (
	// Error is returned when the sandbox image cannot be built.
	Error struct {
		Name container.ImageTag
		Err  error
	}

	// Builder builds sandbox images through a container engine.
	Builder struct {
		engine container.Engine
		config *Config
	}
)

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrImageBuild, e.Name, e.Err)
}

// Is reports ErrImageBuild so callers can match the kind with errors.Is.
func (e *Error) Is(target error) bool { return target == ErrImageBuild }

func (e *Error) Unwrap() error { return e.Err }

// NewBuilder creates a Builder for the given engine.
func NewBuilder(engine container.Engine, opts ...Option) *Builder {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	return &Builder{engine: engine, config: cfg}
}

// Config returns the builder's configuration.
func (b *Builder) Config() *Config {
	return b.config
}

// Build writes a Dockerfile into the staging directory and builds it as
// name, returning the engine-assigned image ID. Each call produces a new
// build; transient engine failures are retried.
func (b *Builder) Build(ctx context.Context, layout *bundle.Layout, name container.ImageTag) (container.ImageID, error) {
	if err := name.Validate(); err != nil {
		return "", &Error{Name: name, Err: err}
	}
	if _, err := os.Stat(layout.Archive); err != nil {
		return "", &Error{Name: name, Err: fmt.Errorf("unit archive missing: %w", err)}
	}

	dockerfile := filepath.Join(layout.Dir, "Dockerfile")
	if err := os.WriteFile(dockerfile, []byte(b.generateDockerfile(layout)), 0o644); err != nil {
		return "", &Error{Name: name, Err: fmt.Errorf("failed to write Dockerfile: %w", err)}
	}

	labels := maps.Clone(b.config.Labels)
	if labels == nil {
		labels = make(map[string]string, 2)
	}
	labels[LabelDigest] = layout.Digest
	labels[LabelUnits] = strconv.Itoa(len(layout.Units))

	opts := container.BuildOptions{
		ContextDir: layout.Dir,
		Dockerfile: "Dockerfile",
		Tag:        name,
		Labels:     labels,
		NoCache:    b.config.NoCache,
		Output:     b.config.Output,
	}

	var id container.ImageID
	err := container.RetryWithBackoff(ctx, b.config.Retries, b.config.Backoff, func(attempt int) (bool, error) {
		var buildErr error
		id, buildErr = b.engine.Build(ctx, opts)
		if buildErr != nil && container.IsTransientError(buildErr) {
			b.config.Logger.Debug("transient image build error, retrying",
				"attempt", attempt+1,
				"error", buildErr)
			return true, buildErr
		}
		return false, buildErr
	})
	if err != nil {
		return "", &Error{Name: name, Err: buildFailure(b.engine.Name(), b.config.BaseImage, err)}
	}

	b.config.Logger.Info("sandbox image built", "image", name, "id", id, "digest", layout.Digest)
	return id, nil
}

func buildFailure(engine, baseImage string, cause error) error {
	return issue.NewErrorContext().
		WithOperation("build sandbox image").
		WithResource(baseImage).
		WithSuggestion("Ensure the base image can be pulled (try: docker pull " + baseImage + ")").
		WithSuggestion("Check that the " + engine + " engine is running and reachable").
		WithSuggestion("Set staging.keep to inspect the generated Dockerfile").
		WithIssue(issue.ImageBuildFailedId).
		Wrap(cause).
		BuildError()
}

// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"io"
)

type (
	// Engine defines the container lifecycle operations confinity needs.
	// Every failure is a *CallError.
	Engine interface {
		// Name returns the engine name (docker-api, docker or podman).
		Name() string
		// Available checks if the engine can be reached.
		Available(ctx context.Context) bool

		// Build builds an image from a Dockerfile and returns its engine-assigned ID.
		Build(ctx context.Context, opts BuildOptions) (ImageID, error)
		// Create creates a network-disabled container without starting it.
		Create(ctx context.Context, opts CreateOptions) (ContainerID, error)
		// Start starts a created container.
		Start(ctx context.Context, id ContainerID) error
		// Wait blocks until the container is no longer running and returns its exit status.
		Wait(ctx context.Context, id ContainerID) (int, error)
		// Logs returns everything the container wrote to standard output.
		Logs(ctx context.Context, id ContainerID) (string, error)
		// Remove deletes a container. Removing a missing container succeeds.
		Remove(ctx context.Context, id ContainerID, force bool) error
		// RemoveImage deletes an image. Removing a missing image succeeds.
		RemoveImage(ctx context.Context, id ImageID, force bool) error
	}

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Dockerfile is the path to the Dockerfile (relative to ContextDir).
		Dockerfile string
		// Tag is the image tag.
		Tag ImageTag
		// Labels are attached to the built image.
		Labels map[string]string
		// NoCache disables the build cache.
		NoCache bool
		// Output receives the engine's build progress (optional).
		Output io.Writer
	}

	// CreateOptions contains options for creating a container. The container
	// always has networking disabled, no standard input and no TTY; standard
	// output and error are attached.
	CreateOptions struct {
		// Image is the image ID or tag to create the container from.
		Image string
		// Args are passed to the image entrypoint.
		Args []string
		// Labels are attached to the container.
		Labels map[string]string
		// Name is the container name (optional, engine-generated if empty).
		Name string
	}

	// EngineType identifies the container engine type.
	EngineType string

	// ErrEngineNotAvailable is returned when a container engine is not available.
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}

	// Options configures engine construction.
	Options struct {
		// Host overrides the engine endpoint. The CLI engines receive it as
		// DOCKER_HOST or CONTAINER_HOST.
		Host string
		// CLI options are applied to the CLI engines.
		CLI []BaseCLIEngineOption
	}
)

const (
	EngineTypeDockerAPI EngineType = "docker-api"
	EngineTypeDocker    EngineType = "docker"
	EngineTypePodman    EngineType = "podman"
)

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// NewEngine creates a container engine based on preference. The API engine
// is returned without probing since the SDK client connects lazily; the CLI
// engines fall back to each other when the preferred binary is unusable.
func NewEngine(ctx context.Context, preferredType EngineType, opts Options) (Engine, error) {
	switch preferredType {
	case EngineTypeDockerAPI:
		return NewAPIEngine(opts.Host)

	case EngineTypePodman:
		engine := NewPodmanEngine(cliOptions(EngineTypePodman, opts)...)
		if engine.Available(ctx) {
			return engine, nil
		}
		dockerEngine := NewDockerEngine(cliOptions(EngineTypeDocker, opts)...)
		if dockerEngine.Available(ctx) {
			return dockerEngine, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	case EngineTypeDocker:
		engine := NewDockerEngine(cliOptions(EngineTypeDocker, opts)...)
		if engine.Available(ctx) {
			return engine, nil
		}
		podmanEngine := NewPodmanEngine(cliOptions(EngineTypePodman, opts)...)
		if podmanEngine.Available(ctx) {
			return podmanEngine, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferredType)
	}
}

// AutoDetectEngine tries to find an available container engine.
func AutoDetectEngine(ctx context.Context, opts Options) (Engine, error) {
	if api, err := NewAPIEngine(opts.Host); err == nil {
		if api.Available(ctx) {
			return api, nil
		}
		_ = api.Close()
	}

	podman := NewPodmanEngine(cliOptions(EngineTypePodman, opts)...)
	if podman.Available(ctx) {
		return podman, nil
	}

	docker := NewDockerEngine(cliOptions(EngineTypeDocker, opts)...)
	if docker.Available(ctx) {
		return docker, nil
	}

	return nil, &ErrEngineNotAvailable{
		Engine: "any",
		Reason: "no container engine (docker API, podman or docker) is available on this system",
	}
}

func cliOptions(t EngineType, opts Options) []BaseCLIEngineOption {
	if opts.Host == "" {
		return opts.CLI
	}
	key := "DOCKER_HOST"
	if t == EngineTypePodman {
		key = "CONTAINER_HOST"
	}
	return append([]BaseCLIEngineOption{WithCmdEnvOverride(key, opts.Host)}, opts.CLI...)
}

// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides the Engine implementation shared by CLI-based
	// container engines. Docker and Podman embed it and only differ in their
	// name, availability probe and not-found wording.
	BaseCLIEngine struct {
		name            string // Engine name for error messages (e.g., "docker", "podman")
		binaryPath      string
		execCommand     ExecCommandFunc
		cmdEnvOverrides map[string]string
	}
)

// notFoundMarkers are stderr fragments both CLIs print when the target of a
// removal is already gone.
var notFoundMarkers = []string{
	"No such container",
	"no such container",
	"No such image",
	"image not known",
	"no container with name or ID",
}

// WithExecCommand overrides command construction.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithCmdEnvOverride sets an environment variable on every command the engine runs.
func WithCmdEnvOverride(key, value string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		if e.cmdEnvOverrides == nil {
			e.cmdEnvOverrides = make(map[string]string)
		}
		e.cmdEnvOverrides[key] = value
	}
}

// NewBaseCLIEngine creates a BaseCLIEngine for the binary at binaryPath.
func NewBaseCLIEngine(name, binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		name:        name,
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the engine name.
func (e *BaseCLIEngine) Name() string {
	return e.name
}

// BinaryPath returns the resolved engine binary, empty when not installed.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// BuildArgs builds the argument slice for a quiet 'build' command, which
// prints only the resulting image ID.
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build", "-q"}

	if opts.Dockerfile != "" {
		dockerfilePath := opts.Dockerfile
		if !filepath.IsAbs(dockerfilePath) && opts.ContextDir != "" {
			dockerfilePath = filepath.Join(opts.ContextDir, dockerfilePath)
		}
		args = append(args, "-f", dockerfilePath)
	}

	if opts.Tag != "" {
		args = append(args, "-t", string(opts.Tag))
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	args = append(args, labelArgs(opts.Labels)...)
	args = append(args, opts.ContextDir)

	return args
}

// CreateArgs builds the argument slice for a 'create' command. Networking is
// always disabled and no stdin or TTY is requested.
func (e *BaseCLIEngine) CreateArgs(opts CreateOptions) []string {
	args := []string{"create", "--network", "none"}

	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}

	args = append(args, labelArgs(opts.Labels)...)
	args = append(args, opts.Image)
	args = append(args, opts.Args...)

	return args
}

// StartArgs builds the argument slice for a 'start' command.
func (e *BaseCLIEngine) StartArgs(id ContainerID) []string {
	return []string{"start", string(id)}
}

// WaitArgs builds the argument slice for a 'wait' command.
func (e *BaseCLIEngine) WaitArgs(id ContainerID) []string {
	return []string{"wait", string(id)}
}

// LogsArgs builds the argument slice for a 'logs' command.
func (e *BaseCLIEngine) LogsArgs(id ContainerID) []string {
	return []string{"logs", string(id)}
}

// RemoveArgs builds the argument slice for an 'rm' command.
func (e *BaseCLIEngine) RemoveArgs(id ContainerID, force bool) []string {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	return append(args, string(id))
}

// RemoveImageArgs builds the argument slice for an 'rmi' command.
func (e *BaseCLIEngine) RemoveImageArgs(id ImageID, force bool) []string {
	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	return append(args, string(id))
}

// RunCommand executes the engine binary and returns its standard output.
// Standard error is captured into the returned error.
func (e *BaseCLIEngine) RunCommand(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("command %s %v failed: %w: %s", e.binaryPath, args, err, msg)
		}
		return "", fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return stdout.String(), nil
}

// CreateCommand creates an exec.Cmd for the engine binary with the engine's
// environment overrides applied.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	cmd := e.execCommand(ctx, e.binaryPath, args...)
	if len(e.cmdEnvOverrides) > 0 {
		env := cmd.Env
		if env == nil {
			env = os.Environ()
		}
		for _, k := range slices.Sorted(maps.Keys(e.cmdEnvOverrides)) {
			env = append(env, k+"="+e.cmdEnvOverrides[k])
		}
		cmd.Env = env
	}
	return cmd
}

// Build builds an image and returns the ID printed by the quiet build.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) (ImageID, error) {
	out, err := e.RunCommand(ctx, e.BuildArgs(opts)...)
	if err != nil {
		return "", callError(e.name, OpBuild, string(opts.Tag), err)
	}
	id := ImageID(lastLine(out))
	if err := id.Validate(); err != nil {
		return "", callError(e.name, OpBuild, string(opts.Tag), err)
	}
	return id, nil
}

// Create creates a container and returns the ID printed by the engine.
func (e *BaseCLIEngine) Create(ctx context.Context, opts CreateOptions) (ContainerID, error) {
	out, err := e.RunCommand(ctx, e.CreateArgs(opts)...)
	if err != nil {
		return "", callError(e.name, OpCreate, opts.Image, err)
	}
	id := ContainerID(lastLine(out))
	if err := id.Validate(); err != nil {
		return "", callError(e.name, OpCreate, opts.Image, err)
	}
	return id, nil
}

// Start starts a created container.
func (e *BaseCLIEngine) Start(ctx context.Context, id ContainerID) error {
	_, err := e.RunCommand(ctx, e.StartArgs(id)...)
	return callError(e.name, OpStart, string(id), err)
}

// Wait blocks until the container exits and returns its exit status.
func (e *BaseCLIEngine) Wait(ctx context.Context, id ContainerID) (int, error) {
	out, err := e.RunCommand(ctx, e.WaitArgs(id)...)
	if err != nil {
		return 0, callError(e.name, OpWait, string(id), err)
	}
	code, err := strconv.Atoi(lastLine(out))
	if err != nil {
		return 0, callError(e.name, OpWait, string(id), fmt.Errorf("unexpected wait output %q: %w", out, err))
	}
	return code, nil
}

// Logs returns the container's standard output.
func (e *BaseCLIEngine) Logs(ctx context.Context, id ContainerID) (string, error) {
	out, err := e.RunCommand(ctx, e.LogsArgs(id)...)
	if err != nil {
		return "", callError(e.name, OpLogs, string(id), err)
	}
	return out, nil
}

// Remove deletes a container. A container that no longer exists counts as removed.
func (e *BaseCLIEngine) Remove(ctx context.Context, id ContainerID, force bool) error {
	_, err := e.RunCommand(ctx, e.RemoveArgs(id, force)...)
	if isCLINotFound(err) {
		return nil
	}
	return callError(e.name, OpRemove, string(id), err)
}

// RemoveImage deletes an image. An image that no longer exists counts as removed.
func (e *BaseCLIEngine) RemoveImage(ctx context.Context, id ImageID, force bool) error {
	_, err := e.RunCommand(ctx, e.RemoveImageArgs(id, force)...)
	if isCLINotFound(err) {
		return nil
	}
	return callError(e.name, OpRemoveImage, string(id), err)
}

func (e *BaseCLIEngine) probe(ctx context.Context, args ...string) bool {
	if e.binaryPath == "" {
		return false
	}
	return e.CreateCommand(ctx, args...).Run() == nil
}

func isCLINotFound(err error) bool {
	if err == nil {
		return false
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	msg := err.Error()
	for _, marker := range notFoundMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func labelArgs(labels map[string]string) []string {
	args := make([]string, 0, 2*len(labels))
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		args = append(args, "--label", k+"="+labels[k])
	}
	return args
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

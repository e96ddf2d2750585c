// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/build"
	dcontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/moby/go-archive"
)

type (
	// APIEngine implements the Engine interface over the Docker Engine REST
	// API. It also works against Podman's Docker-compatible socket.
	APIEngine struct {
		cli *client.Client
	}

	// EngineCloser is implemented by engines that hold resources requiring
	// cleanup (e.g., an HTTP client). CLI engines don't implement it.
	EngineCloser interface {
		Close() error
	}

	buildAux struct {
		ID string `json:"ID"`
	}
)

// NewAPIEngine creates an API engine. The endpoint comes from the standard
// DOCKER_* environment unless host is set. Extra client options are applied
// last and win over both. No connection is made until the first call.
func NewAPIEngine(host string, extra ...client.Opt) (*APIEngine, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	opts = append(opts, extra...)

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, &ErrEngineNotAvailable{Engine: string(EngineTypeDockerAPI), Reason: err.Error()}
	}
	return &APIEngine{cli: cli}, nil
}

// Name returns the engine name.
func (e *APIEngine) Name() string {
	return string(EngineTypeDockerAPI)
}

// Available pings the daemon.
func (e *APIEngine) Available(ctx context.Context) bool {
	_, err := e.cli.Ping(ctx)
	return err == nil
}

// Close releases the underlying HTTP client.
func (e *APIEngine) Close() error {
	return e.cli.Close()
}

// Build streams ContextDir as a tar build context and returns the image ID
// the daemon reports in the build's aux message.
func (e *APIEngine) Build(ctx context.Context, opts BuildOptions) (ImageID, error) {
	buildCtx, err := archive.TarWithOptions(opts.ContextDir, &archive.TarOptions{})
	if err != nil {
		return "", callError(e.Name(), OpBuild, string(opts.Tag), fmt.Errorf("archive build context: %w", err))
	}
	defer buildCtx.Close()

	buildOpts := build.ImageBuildOptions{
		Dockerfile:  opts.Dockerfile,
		Labels:      opts.Labels,
		NoCache:     opts.NoCache,
		Remove:      true,
		ForceRemove: true,
	}
	if opts.Tag != "" {
		buildOpts.Tags = []string{string(opts.Tag)}
	}

	resp, err := e.cli.ImageBuild(ctx, buildCtx, buildOpts)
	if err != nil {
		return "", callError(e.Name(), OpBuild, string(opts.Tag), err)
	}
	defer resp.Body.Close()

	id, err := readBuildStream(resp.Body, opts.Output)
	if err != nil {
		return "", callError(e.Name(), OpBuild, string(opts.Tag), err)
	}
	return id, nil
}

// Create creates a network-disabled container with stdout and stderr attached.
func (e *APIEngine) Create(ctx context.Context, opts CreateOptions) (ContainerID, error) {
	cfg := &dcontainer.Config{
		Image:           opts.Image,
		Cmd:             opts.Args,
		Labels:          opts.Labels,
		AttachStdin:     false,
		AttachStdout:    true,
		AttachStderr:    true,
		OpenStdin:       false,
		Tty:             false,
		NetworkDisabled: true,
	}
	hostCfg := &dcontainer.HostConfig{NetworkMode: "none"}

	resp, err := e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return "", callError(e.Name(), OpCreate, opts.Image, err)
	}
	id := ContainerID(resp.ID)
	if err := id.Validate(); err != nil {
		return "", callError(e.Name(), OpCreate, opts.Image, err)
	}
	return id, nil
}

// Start starts a created container.
func (e *APIEngine) Start(ctx context.Context, id ContainerID) error {
	err := e.cli.ContainerStart(ctx, string(id), dcontainer.StartOptions{})
	return callError(e.Name(), OpStart, string(id), err)
}

// Wait blocks until the container is no longer running.
func (e *APIEngine) Wait(ctx context.Context, id ContainerID) (int, error) {
	statusCh, errCh := e.cli.ContainerWait(ctx, string(id), dcontainer.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 0, callError(e.Name(), OpWait, string(id), err)
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return 0, callError(e.Name(), OpWait, string(id), errors.New(status.Error.Message))
		}
		return int(status.StatusCode), nil
	}
}

// Logs returns the container's standard output, demultiplexed from the
// engine's framed log stream. Standard error is discarded.
func (e *APIEngine) Logs(ctx context.Context, id ContainerID) (string, error) {
	rc, err := e.cli.ContainerLogs(ctx, string(id), dcontainer.LogsOptions{ShowStdout: true})
	if err != nil {
		return "", callError(e.Name(), OpLogs, string(id), err)
	}
	defer rc.Close()

	var stdout bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, io.Discard, rc); err != nil {
		return "", callError(e.Name(), OpLogs, string(id), err)
	}
	return stdout.String(), nil
}

// Remove deletes a container. A container that no longer exists counts as removed.
func (e *APIEngine) Remove(ctx context.Context, id ContainerID, force bool) error {
	err := e.cli.ContainerRemove(ctx, string(id), dcontainer.RemoveOptions{Force: force})
	if cerrdefs.IsNotFound(err) {
		return nil
	}
	return callError(e.Name(), OpRemove, string(id), err)
}

// RemoveImage deletes an image. An image that no longer exists counts as removed.
func (e *APIEngine) RemoveImage(ctx context.Context, id ImageID, force bool) error {
	_, err := e.cli.ImageRemove(ctx, string(id), image.RemoveOptions{Force: force, PruneChildren: true})
	if cerrdefs.IsNotFound(err) {
		return nil
	}
	return callError(e.Name(), OpRemoveImage, string(id), err)
}

// readBuildStream consumes the daemon's JSON message stream, copying build
// output to out and returning the last image ID announced in an aux message.
func readBuildStream(r io.Reader, out io.Writer) (ImageID, error) {
	var id ImageID
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("read build output: %w", err)
		}
		if msg.Error != nil {
			return "", msg.Error
		}
		if msg.Stream != "" && out != nil {
			_, _ = io.WriteString(out, msg.Stream)
		}
		if msg.Aux != nil {
			var aux buildAux
			if err := json.Unmarshal(*msg.Aux, &aux); err == nil && aux.ID != "" {
				id = ImageID(aux.ID)
			}
		}
	}
	if err := id.Validate(); err != nil {
		return "", fmt.Errorf("build finished without reporting an image ID: %w", err)
	}
	return id, nil
}

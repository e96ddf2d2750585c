// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"os/exec"
)

// PodmanEngine implements the Engine interface using Podman CLI.
// It embeds BaseCLIEngine for common CLI operations.
type PodmanEngine struct {
	*BaseCLIEngine
}

// NewPodmanEngine creates a new Podman engine.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	path, _ := exec.LookPath("podman")
	return &PodmanEngine{
		BaseCLIEngine: NewBaseCLIEngine(string(EngineTypePodman), path, opts...),
	}
}

// Available checks if Podman is usable.
func (e *PodmanEngine) Available(ctx context.Context) bool {
	return e.probe(ctx, "version", "--format", "{{.Version}}")
}

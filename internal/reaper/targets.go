// SPDX-License-Identifier: MPL-2.0

package reaper

import (
	"slices"
	"sync"

	"github.com/rohanprabhu-jm/confinity/internal/container"
)

// Targets is the set of resources awaiting removal. Insertion order is kept
// so passes remove the oldest containers first.
type Targets struct {
	mu         sync.Mutex
	containers []container.ContainerID
	images     []container.ImageID
}

// NewTargets creates an empty target set.
func NewTargets() *Targets {
	return &Targets{}
}

// TrackContainer adds id. Empty and already tracked IDs are ignored.
func (t *Targets) TrackContainer(id container.ContainerID) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.containers, id) {
		t.containers = append(t.containers, id)
	}
}

// TrackImage adds id. Empty and already tracked IDs are ignored.
func (t *Targets) TrackImage(id container.ImageID) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.images, id) {
		t.images = append(t.images, id)
	}
}

// Containers returns a snapshot of the tracked containers.
func (t *Targets) Containers() []container.ContainerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.containers)
}

// Images returns a snapshot of the tracked images.
func (t *Targets) Images() []container.ImageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.images)
}

// ForgetContainer stops tracking id.
func (t *Targets) ForgetContainer(id container.ContainerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.containers = slices.DeleteFunc(t.containers, func(c container.ContainerID) bool { return c == id })
}

// ForgetImage stops tracking id.
func (t *Targets) ForgetImage(id container.ImageID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.images = slices.DeleteFunc(t.images, func(i container.ImageID) bool { return i == id })
}

// Len returns the number of tracked containers and images.
func (t *Targets) Len() (containers, images int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.containers), len(t.images)
}

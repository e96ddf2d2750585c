// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rohanprabhu-jm/confinity/internal/bundle"
	"github.com/rohanprabhu-jm/confinity/internal/container"
)

// ErrFakeNotFound is returned for unknown images and containers.
var ErrFakeNotFound = errors.New("no such object")

type (
	// FakeRun describes a container the FakeEngine is asked to start.
	FakeRun struct {
		Image container.ImageID
		// UnitDir holds the image's unpacked unit archive.
		UnitDir string
		Args    []string
		Labels  map[string]string
	}

	// Runner simulates the container process.
	Runner func(ctx context.Context, run FakeRun) (stdout string, exitCode int)

	// Call is one recorded engine operation.
	Call struct {
		Op  container.Op
		Ref string
	}

	// FakeEngine is an in-memory container.Engine. Built images keep their
	// unpacked unit tree so a Runner can execute the dispatcher in-process.
	FakeEngine struct {
		// Runner is invoked on Start; nil runs print nothing and exit 0.
		Runner Runner
		// RemoveDelay widens the window in which concurrent removals overlap.
		RemoveDelay time.Duration

		mu          sync.Mutex
		root        string
		seq         int
		fail        map[container.Op]error
		removeFails map[string]int
		calls       []Call
		images      map[container.ImageID]string
		containers  map[container.ContainerID]*fakeContainer
		removing    map[string]int
		overlaps    int
	}

	fakeContainer struct {
		run      FakeRun
		started  bool
		stdout   string
		exitCode int
	}
)

// NewFakeEngine creates a FakeEngine storing unpacked images under a test temp dir.
func NewFakeEngine(t testing.TB) *FakeEngine {
	t.Helper()
	return &FakeEngine{
		root:        t.TempDir(),
		fail:        make(map[container.Op]error),
		removeFails: make(map[string]int),
		images:      make(map[container.ImageID]string),
		containers:  make(map[container.ContainerID]*fakeContainer),
		removing:    make(map[string]int),
	}
}

// FailOp makes every subsequent op call fail with err (nil clears).
func (f *FakeEngine) FailOp(op container.Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

// FailRemovals makes the next n removals of ref (container or image ID) fail.
func (f *FakeEngine) FailRemovals(ref string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeFails[ref] = n
}

func (f *FakeEngine) Name() string { return "fake" }

func (f *FakeEngine) Available(context.Context) bool { return true }

func (f *FakeEngine) Build(_ context.Context, opts container.BuildOptions) (container.ImageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: container.OpBuild, Ref: string(opts.Tag)})
	if err := f.fail[container.OpBuild]; err != nil {
		return "", f.callError(container.OpBuild, string(opts.Tag), err)
	}

	f.seq++
	id := container.ImageID(fmt.Sprintf("sha256:fake%04d", f.seq))
	dir := filepath.Join(f.root, fmt.Sprintf("image-%04d", f.seq))
	if err := bundle.Unpack(filepath.Join(opts.ContextDir, bundle.ArchiveName), dir); err != nil {
		return "", f.callError(container.OpBuild, string(opts.Tag), err)
	}
	f.images[id] = dir
	return id, nil
}

func (f *FakeEngine) Create(_ context.Context, opts container.CreateOptions) (container.ContainerID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: container.OpCreate, Ref: opts.Image})
	if err := f.fail[container.OpCreate]; err != nil {
		return "", f.callError(container.OpCreate, opts.Image, err)
	}
	dir, ok := f.images[container.ImageID(opts.Image)]
	if !ok {
		return "", f.callError(container.OpCreate, opts.Image, fmt.Errorf("%w: image %s", ErrFakeNotFound, opts.Image))
	}

	f.seq++
	id := container.ContainerID(fmt.Sprintf("fake-c%04d", f.seq))
	f.containers[id] = &fakeContainer{run: FakeRun{
		Image:   container.ImageID(opts.Image),
		UnitDir: dir,
		Args:    slices.Clone(opts.Args),
		Labels:  maps.Clone(opts.Labels),
	}}
	return id, nil
}

func (f *FakeEngine) Start(ctx context.Context, id container.ContainerID) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: container.OpStart, Ref: string(id)})
	if err := f.fail[container.OpStart]; err != nil {
		f.mu.Unlock()
		return f.callError(container.OpStart, string(id), err)
	}
	c, ok := f.containers[id]
	runner := f.Runner
	f.mu.Unlock()
	if !ok {
		return f.callError(container.OpStart, string(id), ErrFakeNotFound)
	}

	var stdout string
	var code int
	if runner != nil {
		stdout, code = runner(ctx, c.run)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c.started = true
	c.stdout = stdout
	c.exitCode = code
	return nil
}

func (f *FakeEngine) Wait(_ context.Context, id container.ContainerID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: container.OpWait, Ref: string(id)})
	if err := f.fail[container.OpWait]; err != nil {
		return 0, f.callError(container.OpWait, string(id), err)
	}
	c, ok := f.containers[id]
	if !ok {
		return 0, f.callError(container.OpWait, string(id), ErrFakeNotFound)
	}
	return c.exitCode, nil
}

func (f *FakeEngine) Logs(_ context.Context, id container.ContainerID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: container.OpLogs, Ref: string(id)})
	if err := f.fail[container.OpLogs]; err != nil {
		return "", f.callError(container.OpLogs, string(id), err)
	}
	c, ok := f.containers[id]
	if !ok {
		return "", f.callError(container.OpLogs, string(id), ErrFakeNotFound)
	}
	return c.stdout, nil
}

func (f *FakeEngine) Remove(_ context.Context, id container.ContainerID, _ bool) error {
	if err := f.beginRemoval(container.OpRemove, string(id)); err != nil {
		return err
	}
	defer f.endRemoval(string(id))

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
	return nil
}

func (f *FakeEngine) RemoveImage(_ context.Context, id container.ImageID, _ bool) error {
	if err := f.beginRemoval(container.OpRemoveImage, string(id)); err != nil {
		return err
	}
	defer f.endRemoval(string(id))

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, id)
	return nil
}

func (f *FakeEngine) beginRemoval(op container.Op, ref string) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: op, Ref: ref})
	if f.removing[ref] > 0 {
		f.overlaps++
	}
	f.removing[ref]++
	delay := f.RemoveDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[op]; err != nil {
		f.removing[ref]--
		return f.callError(op, ref, err)
	}
	if f.removeFails[ref] > 0 {
		f.removeFails[ref]--
		f.removing[ref]--
		return f.callError(op, ref, errors.New("removal in progress"))
	}
	return nil
}

func (f *FakeEngine) endRemoval(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removing[ref]--
}

func (f *FakeEngine) callError(op container.Op, ref string, err error) error {
	return &container.CallError{Engine: "fake", Op: op, Ref: ref, Err: err}
}

// SeedImage registers an image without building it. Containers created from
// it see an empty unit directory.
func (f *FakeEngine) SeedImage(t testing.TB) container.ImageID {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := container.ImageID(fmt.Sprintf("sha256:seed%04d", f.seq))
	f.images[id] = t.TempDir()
	return id
}

// Calls returns every recorded operation in order.
func (f *FakeEngine) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Count returns how many times op was called.
func (f *FakeEngine) Count(op container.Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// LiveContainers returns the IDs of containers not yet removed, sorted.
func (f *FakeEngine) LiveContainers() []container.ContainerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(maps.Keys(f.containers))
}

// LiveImages returns the IDs of images not yet removed, sorted.
func (f *FakeEngine) LiveImages() []container.ImageID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(maps.Keys(f.images))
}

// ContainerRun returns what a container was created with.
func (f *FakeEngine) ContainerRun(id container.ContainerID) (FakeRun, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return FakeRun{}, false
	}
	return c.run, true
}

// Overlaps returns how many removals started while another removal of the
// same ID was still in flight.
func (f *FakeEngine) Overlaps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlaps
}

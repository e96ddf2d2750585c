// SPDX-License-Identifier: MPL-2.0

package confinity

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rohanprabhu-jm/confinity/internal/bundle"
	"github.com/rohanprabhu-jm/confinity/internal/config"
	"github.com/rohanprabhu-jm/confinity/internal/container"
	"github.com/rohanprabhu-jm/confinity/internal/dispatch"
	"github.com/rohanprabhu-jm/confinity/internal/image"
	"github.com/rohanprabhu-jm/confinity/internal/invoke"
	"github.com/rohanprabhu-jm/confinity/internal/issue"
	"github.com/rohanprabhu-jm/confinity/internal/reaper"
)

const (
	// LabelSession is set on every image and container a Runtime creates.
	LabelSession = "io.confinity.session"

	shutdownSweepTimeout = 30 * time.Second
)

const (
	stateOpen registryState = iota
	stateCommitting
	stateLocked
)

type (
	registryState int

	// Runtime owns the handler registry, the sandbox image and every
	// container created on its behalf.
	Runtime struct {
		settings settings
		logger   *slog.Logger
		session  string
		engine   container.Engine
		targets  *reaper.Targets
		reaper   *reaper.Reaper
		builder  *image.Builder
		executor *invoke.Executor

		mu         sync.Mutex
		state      registryState
		shutting   bool
		invocables []*invocable
		names      map[string]struct{}
		deps       []string
		units      bundle.MapLocator
		image      container.ImageID
		layout     *bundle.Layout

		// commits and calls count operations that passed the shutdown check.
		commits   sync.WaitGroup
		calls     sync.WaitGroup
		closeOnce sync.Once
	}

	// Stats is a snapshot of a Runtime's state.
	Stats struct {
		Handlers          int
		Committed         bool
		Image             string
		TrackedContainers int
		TrackedImages     int
		ShuttingDown      bool
	}
)

// New creates an open Runtime and starts background reclamation.
func New(opts ...Option) (*Runtime, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if err := s.imageName.Validate(); err != nil {
		return nil, fmt.Errorf("image name: %w", err)
	}

	engine := s.engine
	if engine == nil {
		engine = container.NewLazyEngine("auto", detectEngine(s.engineType, s.engineHost))
	}

	rt := &Runtime{
		settings: s,
		logger:   s.logger,
		session:  uuid.NewString(),
		engine:   engine,
		targets:  reaper.NewTargets(),
		names:    make(map[string]struct{}),
		units:    make(bundle.MapLocator),
	}
	labels := map[string]string{LabelSession: rt.session}

	reaperOpts := []reaper.Option{
		reaper.WithInterval(s.cleanupInterval),
		reaper.WithConcurrency(s.cleanupConcurrency),
		reaper.WithLeakAfter(s.leakAfter),
		reaper.WithLogger(s.logger),
	}
	if s.clock != nil {
		reaperOpts = append(reaperOpts, reaper.WithClock(s.clock))
	}
	rt.reaper = reaper.New(engine, rt.targets, reaperOpts...)
	rt.builder = image.NewBuilder(engine,
		image.WithBaseImage(s.baseImage),
		image.WithLabels(labels),
		image.WithNoCache(s.noCache),
		image.WithOutput(s.buildOutput),
		image.WithLogger(s.logger))
	rt.executor = invoke.NewExecutor(engine, rt.targets,
		invoke.WithLabels(labels),
		invoke.WithTimeout(s.callTimeout),
		invoke.WithLogger(s.logger))

	rt.reaper.Start(context.Background())
	return rt, nil
}

// NewFromConfig creates a Runtime from loaded configuration. opts are
// applied after the configuration and take precedence.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Runtime, error) {
	engineType, _ := cfg.Engine.ContainerType()
	fromConfig := []Option{
		WithEngineType(engineType, cfg.EngineHost),
		WithImageName(cfg.ImageName),
		WithBaseImage(cfg.BaseImage),
		WithCleanupInterval(cfg.CleanupInterval.Std()),
		WithCleanupConcurrency(cfg.CleanupConcurrency),
		WithLeakAfter(cfg.LeakAfter),
		WithCallTimeout(cfg.CallTimeout.Std()),
		WithStagingDir(cfg.Staging.Dir),
		WithKeepStaging(cfg.Staging.Keep),
		WithVendored(cfg.Vendored...),
	}
	if cfg.VendoredSuffixes != nil {
		fromConfig = append(fromConfig, WithVendoredSuffixes(cfg.VendoredSuffixes))
	}
	return New(append(fromConfig, opts...)...)
}

func detectEngine(t container.EngineType, host string) container.ResolveFunc {
	return func(ctx context.Context) (container.Engine, error) {
		var (
			engine container.Engine
			err    error
		)
		if t == "" {
			engine, err = container.AutoDetectEngine(ctx, container.Options{Host: host})
		} else {
			engine, err = container.NewEngine(ctx, t, container.Options{Host: host})
		}
		if err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("connect to container engine").
				WithResource(host).
				WithSuggestions(
					"Start the Docker or Podman daemon",
					"Set engine_host (or CONFINITY_ENGINE_HOST) to the daemon socket",
				).
				WithIssue(issue.EngineNotAvailableId).
				Wrap(err).
				BuildError()
		}
		return engine, nil
	}
}

// Session returns the label value identifying this Runtime's resources.
func (rt *Runtime) Session() string {
	return rt.session
}

// Stats returns a snapshot of the registry and the tracked resources.
func (rt *Runtime) Stats() Stats {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	containers, images := rt.targets.Len()
	return Stats{
		Handlers:          len(rt.invocables),
		Committed:         rt.state == stateLocked,
		Image:             string(rt.image),
		TrackedContainers: containers,
		TrackedImages:     images,
		ShuttingDown:      rt.shutting,
	}
}

// Dispatch serves one call inside the sandbox. args are the container
// arguments [identifier, payload]; the unit tree is read from the directory
// named by CONFINITY_UNIT_PATH. The return value is the process exit status.
func (rt *Runtime) Dispatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return rt.DispatchFS(ctx, nil, args, stdout, stderr)
}

// DispatchFS is Dispatch reading the unit tree from units.
func (rt *Runtime) DispatchFS(ctx context.Context, units fs.FS, args []string, stdout, stderr io.Writer) int {
	return dispatch.Serve(ctx, rt.table(), args, dispatch.Options{
		Units:  units,
		Stdout: stdout,
		Stderr: stderr,
	})
}

func (rt *Runtime) table() dispatch.Table {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	t := make(dispatch.Table, len(rt.invocables))
	for _, inv := range rt.invocables {
		t.Add(dispatch.Entry{
			Identifier:  inv.identifier,
			PayloadUnit: inv.payloadUnit,
			ResultUnit:  inv.resultUnit,
			Invoke:      inv.invoke,
		})
	}
	return t
}

// Close shuts the runtime down. Register, Commit and Call fail with
// ErrShuttingDown from the moment Close starts. Close waits for commits and
// calls already in progress, bounded by ctx, then removes every tracked
// container and image. Removal failures are logged and never returned; Close
// always returns nil and is safe to call more than once.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.closeOnce.Do(func() {
		rt.shutdown(ctx)
	})
	return nil
}

func (rt *Runtime) shutdown(ctx context.Context) {
	rt.mu.Lock()
	rt.shutting = true
	rt.mu.Unlock()

	// No background pass may run once the final sweep is pending.
	rt.reaper.Stop()

	if !waitGroup(ctx, &rt.commits) || !waitGroup(ctx, &rt.calls) {
		rt.logger.Warn("shutdown proceeding with operations still in flight", "error", ctx.Err())
	}

	sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownSweepTimeout)
	defer cancel()
	report := rt.reaper.Shutdown(sweepCtx)
	rt.logger.Debug("runtime resources reclaimed",
		"containers", len(report.RemovedContainers),
		"images", len(report.RemovedImages),
		"leaked_containers", len(report.LeakedContainers),
		"leaked_images", len(report.LeakedImages))

	rt.mu.Lock()
	layout := rt.layout
	rt.mu.Unlock()
	if layout != nil {
		if rt.settings.keepStaging {
			rt.logger.Info("staging directory kept", "path", layout.Dir)
		} else if err := layout.Remove(); err != nil {
			rt.logger.Warn("could not remove staging directory",
				"path", layout.Dir, "error", fmt.Errorf("%w: %w", ErrCleanup, err))
		}
	}

	if closer, ok := rt.engine.(container.EngineCloser); ok {
		if err := closer.Close(); err != nil {
			rt.logger.Debug("engine close failed", "error", fmt.Errorf("%w: %w", ErrCleanup, err))
		}
	}
}

// waitGroup waits for wg or ctx and reports whether wg finished.
func waitGroup(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// snapshotUnits returns a copy of the generated units for bundling.
func (rt *Runtime) snapshotUnits() bundle.MapLocator {
	return maps.Clone(rt.units)
}

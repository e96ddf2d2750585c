// SPDX-License-Identifier: MPL-2.0

package reaper

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rohanprabhu-jm/confinity/internal/container"
)

const (
	// DefaultInterval is the delay between two background passes.
	DefaultInterval = 1500 * time.Millisecond
	// DefaultConcurrency bounds parallel removals within a pass.
	DefaultConcurrency = 4
	// DefaultLeakAfter is the number of consecutive failed removals after
	// which a container is reported as leaked.
	DefaultLeakAfter = 5

	passKey = "pass"
)

type (
	// Clock is the time source of the background loop.
	Clock interface {
		After(d time.Duration) <-chan time.Time
	}

	// Config holds the reaper settings.
	Config struct {
		// Interval between passes; zero or negative disables the loop.
		Interval    time.Duration
		Concurrency int
		LeakAfter   int
		Clock       Clock
		Logger      *slog.Logger
	}

	// Option configures a Reaper.
	Option func(*Config)

	// PassResult summarizes one pass over the tracked containers.
	PassResult struct {
		Attempted int
		Removed   []container.ContainerID
		Failed    []container.ContainerID
	}

	// Report lists what the shutdown sweep removed and what it had to leave behind.
	Report struct {
		RemovedContainers []container.ContainerID
		RemovedImages     []container.ImageID
		LeakedContainers  []container.ContainerID
		LeakedImages      []container.ImageID
	}

	// Reaper removes tracked resources in the background and on shutdown.
	Reaper struct {
		engine  container.Engine
		targets *Targets
		cfg     Config

		flight singleflight.Group
		// passMu is held for the duration of a pass so Shutdown can wait for it.
		passMu sync.Mutex

		mu       sync.Mutex
		failures map[container.ContainerID]int
		cancel   context.CancelFunc
		done     chan struct{}
		stopped  bool
	}

	systemClock struct{}
)

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// WithInterval sets the delay between background passes.
func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		c.Interval = d
	}
}

// WithConcurrency bounds concurrent removals. Values below one are ignored.
func WithConcurrency(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Concurrency = n
		}
	}
}

// WithLeakAfter sets how many consecutive failures mark a container as leaked.
func WithLeakAfter(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.LeakAfter = n
		}
	}
}

// WithClock replaces the system clock.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// New creates a Reaper over targets. The loop is not running until Start.
func New(engine container.Engine, targets *Targets, opts ...Option) *Reaper {
	cfg := Config{
		Interval:    DefaultInterval,
		Concurrency: DefaultConcurrency,
		LeakAfter:   DefaultLeakAfter,
		Clock:       systemClock{},
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reaper{
		engine:   engine,
		targets:  targets,
		cfg:      cfg,
		failures: make(map[container.ContainerID]int),
	}
}

// Start launches the background loop. It returns immediately; the loop ends
// when ctx is cancelled or Shutdown is called. Start is a no-op if the
// interval is not positive, the loop already runs, or the reaper was shut down.
func (r *Reaper) Start(ctx context.Context) {
	if r.cfg.Interval <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil || r.stopped {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
}

func (r *Reaper) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.cfg.Clock.After(r.cfg.Interval):
			r.Pass(ctx)
		}
	}
}

// Pass removes every tracked container once. A Pass requested while another
// is running joins it and receives its result instead of starting a second
// round of removals.
func (r *Reaper) Pass(ctx context.Context) PassResult {
	v, _, _ := r.flight.Do(passKey, func() (any, error) {
		return r.pass(ctx), nil
	})
	return v.(PassResult)
}

func (r *Reaper) pass(ctx context.Context) PassResult {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	snapshot := r.targets.Containers()
	result := PassResult{Attempted: len(snapshot)}
	if len(snapshot) == 0 {
		return result
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for _, id := range snapshot {
		g.Go(func() error {
			err := r.engine.Remove(ctx, id, true)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, id)
				r.recordFailure(id, err)
				return nil
			}
			result.Removed = append(result.Removed, id)
			r.targets.ForgetContainer(id)
			r.clearFailure(id)
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(result.Removed)
	slices.Sort(result.Failed)
	r.cfg.Logger.Debug("reaper pass finished",
		"attempted", result.Attempted,
		"removed", len(result.Removed),
		"failed", len(result.Failed))
	return result
}

func (r *Reaper) recordFailure(id container.ContainerID, err error) {
	r.mu.Lock()
	r.failures[id]++
	n := r.failures[id]
	r.mu.Unlock()

	r.cfg.Logger.Debug("container removal failed", "container", id, "attempt", n, "error", err)
	if n == r.cfg.LeakAfter {
		r.cfg.Logger.Warn("container keeps failing removal, it may be leaked",
			"container", id, "attempts", n, "error", err)
	}
}

func (r *Reaper) clearFailure(id container.ContainerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failures, id)
}

// Failures returns the consecutive failure count recorded for id.
func (r *Reaper) Failures(id container.ContainerID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[id]
}

// Stop ends the background loop and waits for it to exit. Later calls to
// Start do nothing. Stop is safe to call more than once.
func (r *Reaper) Stop() {
	r.mu.Lock()
	r.stopped = true
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Shutdown stops the loop, waits for a running pass and then force-removes
// every tracked container followed by every tracked image. Resources that
// cannot be removed are logged and listed in the report; they stay tracked.
func (r *Reaper) Shutdown(ctx context.Context) Report {
	r.Stop()

	r.passMu.Lock()
	defer r.passMu.Unlock()

	var report Report
	report.RemovedContainers, report.LeakedContainers = sweep(ctx, r.cfg.Concurrency, r.targets.Containers(),
		func(ctx context.Context, id container.ContainerID) error { return r.engine.Remove(ctx, id, true) },
		r.targets.ForgetContainer,
		func(id container.ContainerID, err error) {
			r.cfg.Logger.Warn("could not remove container, you might have to remove it manually",
				"container", id, "error", err)
		})
	report.RemovedImages, report.LeakedImages = sweep(ctx, r.cfg.Concurrency, r.targets.Images(),
		func(ctx context.Context, id container.ImageID) error { return r.engine.RemoveImage(ctx, id, true) },
		r.targets.ForgetImage,
		func(id container.ImageID, err error) {
			r.cfg.Logger.Warn("could not remove image, you might have to remove it manually",
				"image", id, "error", err)
		})
	return report
}

func sweep[ID ~string](
	ctx context.Context,
	limit int,
	ids []ID,
	remove func(context.Context, ID) error,
	forget func(ID),
	warn func(ID, error),
) (removed, leaked []ID) {
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(limit)
	for _, id := range ids {
		g.Go(func() error {
			err := remove(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warn(id, err)
				leaked = append(leaked, id)
				return nil
			}
			forget(id)
			removed = append(removed, id)
			return nil
		})
	}
	_ = g.Wait()
	slices.Sort(removed)
	slices.Sort(leaked)
	return removed, leaked
}

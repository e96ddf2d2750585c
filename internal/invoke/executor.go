// SPDX-License-Identifier: MPL-2.0

package invoke

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/rohanprabhu-jm/confinity/internal/container"
)

// State is the lifecycle state of a container run as seen by the executor.
type State string

const (
	StateCreated State = "created"
	StateStarted State = "started"
	StateExited  State = "exited"
)

type (
	// Tracker records a container for later reclamation.
	Tracker interface {
		TrackContainer(id container.ContainerID)
	}

	// Run is the outcome of one call. ContainerID is set as soon as the
	// container exists, even when a later step failed.
	Run struct {
		ContainerID container.ContainerID
		Identifier  string
		Payload     string
		// Output is the container's captured standard output.
		Output string
		// ExitCode is the process exit status; meaningful once State is StateExited.
		ExitCode int
		State    State
		Duration time.Duration
	}

	// Executor creates one container per call.
	Executor struct {
		engine  container.Engine
		tracker Tracker
		labels  map[string]string
		timeout time.Duration
		logger  *slog.Logger
	}

	// Option configures an Executor.
	Option func(*Executor)
)

// WithLabels attaches labels to every created container.
func WithLabels(labels map[string]string) Option {
	return func(e *Executor) {
		e.labels = labels
	}
}

// WithTimeout bounds each call. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor creates an Executor that reports every created container to tracker.
func NewExecutor(engine container.Engine, tracker Tracker, opts ...Option) *Executor {
	e := &Executor{
		engine:  engine,
		tracker: tracker,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run creates a container from image with argv [identifier, payload], starts
// it, waits for it to stop and returns its standard output. The container is
// handed to the tracker immediately after creation so that it is reclaimed
// whatever happens next. The exit status is recorded but never turned into
// an error; engine failures are returned along with the partial Run.
func (e *Executor) Run(ctx context.Context, image container.ImageID, identifier, payload string) (*Run, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	started := time.Now()
	run := &Run{Identifier: identifier, Payload: payload}
	defer func() { run.Duration = time.Since(started) }()

	id, err := e.engine.Create(ctx, container.CreateOptions{
		Image:  string(image),
		Args:   []string{identifier, payload},
		Labels: maps.Clone(e.labels),
	})
	if err != nil {
		return run, err
	}
	e.tracker.TrackContainer(id)
	run.ContainerID = id
	run.State = StateCreated

	if err := e.engine.Start(ctx, id); err != nil {
		return run, err
	}
	run.State = StateStarted

	code, err := e.engine.Wait(ctx, id)
	if err != nil {
		return run, err
	}
	run.ExitCode = code
	run.State = StateExited

	out, err := e.engine.Logs(ctx, id)
	if err != nil {
		return run, err
	}
	run.Output = out

	e.logger.Debug("container run finished",
		"identifier", identifier,
		"container", id,
		"exit_code", code,
		"duration", time.Since(started))

	return run, nil
}

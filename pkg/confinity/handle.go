// SPDX-License-Identifier: MPL-2.0

package confinity

import (
	"context"
	"fmt"

	"github.com/rohanprabhu-jm/confinity/internal/container"
	"github.com/rohanprabhu-jm/confinity/internal/issue"
	"github.com/rohanprabhu-jm/confinity/internal/protocol"
)

// Handle calls one registered handler.
type Handle[P, R any] struct {
	rt         *Runtime
	identifier string
}

// Identifier returns the name the handler was registered under.
func (h *Handle[P, R]) Identifier() string {
	return h.identifier
}

// Call runs the handler on payload in a new container and returns its
// result. It fails without contacting the engine with ErrShuttingDown once
// Close has started and with ErrNotCommitted before Commit succeeded. Engine
// failures wrap ErrEngineCall; a sandbox whose output carries no decodable
// result yields a *ProtocolError wrapping ErrProtocolDecode. A non-zero exit
// status alongside a decodable result is logged, not returned.
func (h *Handle[P, R]) Call(ctx context.Context, payload P) (R, error) {
	var zero R

	img, err := h.rt.beginCall()
	if err != nil {
		return zero, err
	}
	defer h.rt.calls.Done()

	serialized, err := protocol.Encode(payload)
	if err != nil {
		return zero, fmt.Errorf("call %s: %w", h.identifier, err)
	}

	run, err := h.rt.executor.Run(ctx, img, h.identifier, serialized)
	if err != nil {
		return zero, fmt.Errorf("call %s: %w", h.identifier, err)
	}

	var result R
	if err := protocol.DecodeOutput(run.Output, &result); err != nil {
		return zero, &ProtocolError{
			Identifier:  h.identifier,
			ContainerID: string(run.ContainerID),
			Output:      run.Output,
			ExitCode:    run.ExitCode,
			Err:         err,
		}
	}
	if run.ExitCode != 0 {
		h.rt.logger.Warn("sandbox exited with non-zero status after producing a result",
			"identifier", h.identifier,
			"container", run.ContainerID,
			"exit_code", run.ExitCode)
	}

	h.rt.logger.Debug("call finished", "identifier", h.identifier, "duration", run.Duration)
	return result, nil
}

// beginCall checks that calls are allowed and registers one in flight.
func (rt *Runtime) beginCall() (container.ImageID, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.shutting {
		return "", ErrShuttingDown
	}
	if rt.state != stateLocked {
		return "", issue.NewErrorContext().
			WithOperation("call handler").
			WithSuggestion("Call Commit after registering every handler and before the first call").
			WithIssue(issue.NotCommittedId).
			Wrap(ErrNotCommitted).
			BuildError()
	}
	rt.calls.Add(1)
	return rt.image, nil
}

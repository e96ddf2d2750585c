// SPDX-License-Identifier: MPL-2.0

package confinity

import (
	"errors"
	"fmt"

	"github.com/rohanprabhu-jm/confinity/internal/bundle"
	"github.com/rohanprabhu-jm/confinity/internal/container"
	"github.com/rohanprabhu-jm/confinity/internal/image"
	"github.com/rohanprabhu-jm/confinity/internal/protocol"
)

var (
	// ErrRegistration is wrapped by every registration failure.
	ErrRegistration = errors.New("registration failed")
	// ErrLocked is returned by Register once Commit was called.
	ErrLocked = fmt.Errorf("%w: runtime is locked", ErrRegistration)
	// ErrShuttingDown is returned by Register, Commit and Call once Close was called.
	ErrShuttingDown = fmt.Errorf("%w: runtime is shutting down", ErrRegistration)
	// ErrDuplicate is returned when an identifier is registered twice.
	ErrDuplicate = fmt.Errorf("%w: duplicate identifier", ErrRegistration)
	// ErrInvalidName is returned for malformed handler or dependency identifiers.
	ErrInvalidName = fmt.Errorf("%w: invalid identifier", ErrRegistration)

	// ErrAlreadyCommitted is returned by Commit when the runtime is locked or
	// another Commit is in progress.
	ErrAlreadyCommitted = errors.New("runtime already committed")
	// ErrNotCommitted is returned by Call before a successful Commit.
	ErrNotCommitted = errors.New("runtime not committed")

	// ErrBundling wraps failures to assemble the handler closure.
	ErrBundling = bundle.ErrBundling
	// ErrImageBuild wraps failures to build the sandbox image.
	ErrImageBuild = image.ErrImageBuild
	// ErrEngineCall wraps every failed container engine operation.
	ErrEngineCall = container.ErrEngineCall
	// ErrProtocolDecode is returned when a sandbox ran but its output carried
	// no decodable result.
	ErrProtocolDecode = protocol.ErrDecode
	// ErrCleanup marks reclamation failures. They are logged, never returned.
	ErrCleanup = errors.New("cleanup failed")
)

// ProtocolError is returned by Call when the container output could not be
// decoded. It keeps what the sandbox printed for debugging.
type ProtocolError struct {
	Identifier  string
	ContainerID string
	// Output is the captured standard output.
	Output   string
	ExitCode int
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("call %s: container %s exited with status %d: %v", e.Identifier, e.ContainerID, e.ExitCode, e.Err)
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocolDecode }

func (e *ProtocolError) Unwrap() error { return e.Err }

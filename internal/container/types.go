// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidContainerID is the sentinel error wrapped by InvalidContainerIDError.
	ErrInvalidContainerID = errors.New("invalid container ID")

	// ErrInvalidImageID is the sentinel error wrapped by InvalidImageIDError.
	ErrInvalidImageID = errors.New("invalid image ID")

	// ErrInvalidImageTag is the sentinel error wrapped by InvalidImageTagError.
	ErrInvalidImageTag = errors.New("invalid image tag")

	// ErrEngineCall is the sentinel error wrapped by CallError.
	ErrEngineCall = errors.New("container engine call failed")
)

type (
	// ContainerID is an engine-assigned container identifier.
	// A valid ID is non-empty and contains no whitespace.
	ContainerID string

	// InvalidContainerIDError is returned when a ContainerID is empty or contains whitespace.
	InvalidContainerIDError struct {
		Value ContainerID
	}

	// ImageID is an engine-assigned image identifier (usually "sha256:<hex>").
	ImageID string

	// InvalidImageIDError is returned when an ImageID is empty or contains whitespace.
	InvalidImageIDError struct {
		Value ImageID
	}

	// ImageTag is a human-assigned image reference such as "confinity-local".
	ImageTag string

	// InvalidImageTagError is returned when an ImageTag is empty, contains
	// whitespace or upper-case letters.
	InvalidImageTagError struct {
		Value ImageTag
	}

	// Op names an engine lifecycle operation.
	Op string

	// CallError is returned by every engine operation that fails. It unwraps
	// to both ErrEngineCall and the underlying cause.
	CallError struct {
		Engine string
		Op     Op
		// Ref is the container ID, image ID or tag the operation targeted.
		Ref string
		Err error
	}
)

const (
	OpPing        Op = "ping"
	OpBuild       Op = "build"
	OpCreate      Op = "create"
	OpStart       Op = "start"
	OpWait        Op = "wait"
	OpLogs        Op = "logs"
	OpRemove      Op = "remove container"
	OpRemoveImage Op = "remove image"
)

func (id ContainerID) String() string { return string(id) }

// Validate returns an error if the ContainerID is empty or contains whitespace.
func (id ContainerID) Validate() error {
	if id == "" || strings.ContainsAny(string(id), " \t\r\n") {
		return &InvalidContainerIDError{Value: id}
	}
	return nil
}

func (e *InvalidContainerIDError) Error() string {
	return fmt.Sprintf("invalid container ID %q", e.Value)
}

func (e *InvalidContainerIDError) Unwrap() error { return ErrInvalidContainerID }

func (id ImageID) String() string { return string(id) }

// Validate returns an error if the ImageID is empty or contains whitespace.
func (id ImageID) Validate() error {
	if id == "" || strings.ContainsAny(string(id), " \t\r\n") {
		return &InvalidImageIDError{Value: id}
	}
	return nil
}

func (e *InvalidImageIDError) Error() string {
	return fmt.Sprintf("invalid image ID %q", e.Value)
}

func (e *InvalidImageIDError) Unwrap() error { return ErrInvalidImageID }

func (t ImageTag) String() string { return string(t) }

// Validate returns an error if the ImageTag is not a usable image reference.
func (t ImageTag) Validate() error {
	s := string(t)
	if s == "" || strings.ContainsAny(s, " \t\r\n") || strings.ToLower(s) != s {
		return &InvalidImageTagError{Value: t}
	}
	return nil
}

func (e *InvalidImageTagError) Error() string {
	return fmt.Sprintf("invalid image tag %q (must be non-empty lower-case without whitespace)", e.Value)
}

func (e *InvalidImageTagError) Unwrap() error { return ErrInvalidImageTag }

func (e *CallError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Engine, e.Op)
	if e.Ref != "" {
		msg += " " + e.Ref
	}
	return msg + ": " + e.Err.Error()
}

// Is reports ErrEngineCall so callers can match the kind with errors.Is.
func (e *CallError) Is(target error) bool { return target == ErrEngineCall }

func (e *CallError) Unwrap() error { return e.Err }

func callError(engine string, op Op, ref string, err error) error {
	if err == nil {
		return nil
	}
	return &CallError{Engine: engine, Op: op, Ref: ref, Err: err}
}

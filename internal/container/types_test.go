// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"testing"
)

func TestTypedIDs_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"valid container", ContainerID("c0ffee").Validate(), nil},
		{"empty container", ContainerID("").Validate(), ErrInvalidContainerID},
		{"container with space", ContainerID("c0 ffee").Validate(), ErrInvalidContainerID},
		{"valid image", ImageID("sha256:feed").Validate(), nil},
		{"empty image", ImageID("").Validate(), ErrInvalidImageID},
		{"valid tag", ImageTag("confinity-local").Validate(), nil},
		{"upper-case tag", ImageTag("Confinity").Validate(), ErrInvalidImageTag},
		{"empty tag", ImageTag("").Validate(), ErrInvalidImageTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.sentinel == nil {
				if tt.err != nil {
					t.Fatalf("unexpected error: %v", tt.err)
				}
				return
			}
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("error = %v, want %v", tt.err, tt.sentinel)
			}
		})
	}
}

func TestCallError(t *testing.T) {
	t.Parallel()

	cause := errors.New("daemon hung up")
	err := callError("docker-api", OpStart, "c0ffee", cause)

	if !errors.Is(err, ErrEngineCall) {
		t.Error("errors.Is(err, ErrEngineCall) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if got, want := err.Error(), "docker-api start c0ffee: daemon hung up"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if callError("docker", OpStart, "c0ffee", nil) != nil {
		t.Error("callError(nil) must be nil")
	}
}

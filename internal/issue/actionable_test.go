// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "commit registry"},
			expected: "failed to commit registry",
		},
		{
			name:     "operation with resource",
			err:      &ActionableError{Operation: "build sandbox image", Resource: "confinity-local"},
			expected: "failed to build sandbox image: confinity-local",
		},
		{
			name:     "operation with cause",
			err:      &ActionableError{Operation: "load config", Cause: errors.New("syntax error at line 5")},
			expected: "failed to load config: syntax error at line 5",
		},
		{
			name: "all fields",
			err: &ActionableError{
				Operation: "call handler",
				Resource:  "demo.Greeter",
				Cause:     errors.New("no result frame"),
			},
			expected: "failed to call handler: demo.Greeter: no result frame",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	root := errors.New("connection refused")
	err := &ActionableError{
		Operation:   "reach engine",
		Suggestions: []string{"Start the Docker daemon", "Set CONFINITY_ENGINE_HOST"},
		Cause:       fmt.Errorf("ping: %w", root),
	}

	plain := err.Format(false)
	if !strings.Contains(plain, "  • Start the Docker daemon") {
		t.Errorf("Format(false) missing suggestion: %q", plain)
	}
	if strings.Contains(plain, "Error chain:") {
		t.Errorf("Format(false) must not include chain: %q", plain)
	}

	verbose := err.Format(true)
	if !strings.Contains(verbose, "Error chain:") || !strings.Contains(verbose, "2. connection refused") {
		t.Errorf("Format(true) missing chain: %q", verbose)
	}
}

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := NewErrorContext().
		WithOperation("bundle closure").
		WithResource("/tmp/stage").
		WithSuggestion("one").
		WithSuggestions("two", "three").
		WithIssue(BundlingFailedId).
		Wrap(cause).
		Build()

	if err == nil {
		t.Fatal("Build() returned nil")
	}
	if len(err.Suggestions) != 3 {
		t.Errorf("Suggestions = %v, want 3 entries", err.Suggestions)
	}
	if !err.HasSuggestions() {
		t.Error("HasSuggestions() = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if err.Issue != BundlingFailedId {
		t.Errorf("Issue = %d, want %d", err.Issue, BundlingFailedId)
	}
}

func TestErrorContext_BuildWithoutOperation(t *testing.T) {
	t.Parallel()

	if err := NewErrorContext().WithResource("x").Build(); err != nil {
		t.Errorf("Build() = %v, want nil", err)
	}
	if err := NewErrorContext().BuildError(); err != nil {
		t.Errorf("BuildError() = %v, want nil", err)
	}
}

func TestIssueOf(t *testing.T) {
	t.Parallel()

	inner := NewErrorContext().
		WithOperation("build sandbox image").
		WithIssue(ImageBuildFailedId).
		Wrap(errors.New("pull denied")).
		BuildError()
	outer := NewErrorContext().WithOperation("commit registry").Wrap(fmt.Errorf("build: %w", inner)).BuildError()

	tests := []struct {
		name string
		err  error
		want *Issue
	}{
		{name: "nil", err: nil, want: nil},
		{name: "plain error", err: errors.New("x"), want: nil},
		{name: "direct", err: inner, want: Get(ImageBuildFailedId)},
		{name: "nested", err: outer, want: Get(ImageBuildFailedId)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IssueOf(tt.err); got != tt.want {
				t.Errorf("IssueOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

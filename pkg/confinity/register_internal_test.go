// SPDX-License-Identifier: MPL-2.0

package confinity

import (
	"context"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/rohanprabhu-jm/confinity/internal/bundle"
)

type (
	unitPayload struct{}
	genericBox[T any] struct {
		Value T
	}
)

func TestTypeUnit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ        reflect.Type
		wantPrefix string
	}{
		{reflect.TypeFor[unitPayload](), "github.com.rohanprabhu-jm.confinity.pkg.confinity.unitPayload"},
		{reflect.TypeFor[*unitPayload](), "github.com.rohanprabhu-jm.confinity.pkg.confinity.unitPayload"},
		{reflect.TypeFor[genericBox[int]](), "github.com.rohanprabhu-jm.confinity.pkg.confinity.genericBox_"},
		{reflect.TypeFor[int](), "confinity.builtin.int"},
		{reflect.TypeFor[map[string]any](), "confinity.builtin.map_string_interface"},
		{reflect.TypeFor[[]string](), "confinity.builtin.__string"},
	}

	for _, tt := range tests {
		got := typeUnit(tt.typ)
		if !strings.HasPrefix(got, tt.wantPrefix) {
			t.Errorf("typeUnit(%v) = %q, want prefix %q", tt.typ, got, tt.wantPrefix)
		}
		if !bundle.ValidIdentifier(got) {
			t.Errorf("typeUnit(%v) = %q is not a valid identifier", tt.typ, got)
		}
	}
}

func TestRegister_GeneratesUnits(t *testing.T) {
	t.Parallel()

	rt, err := New(WithCleanupInterval(0), WithEngine(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(t.Context())

	h, err := Register(rt, "demo.Units", func(_ context.Context, p unitPayload) (int, error) { return 1, nil })
	if err != nil {
		t.Fatalf("Register() unexpected error: %v", err)
	}
	if h.Identifier() != "demo.Units" {
		t.Errorf("Identifier() = %q", h.Identifier())
	}

	closure := rt.closureLocked()
	for _, id := range []string{bundle.DispatcherUnit, "demo.Units", typeUnit(reflect.TypeFor[unitPayload]()), "confinity.builtin.int"} {
		if !slices.Contains(closure, id) {
			t.Errorf("closure %v missing %q", closure, id)
		}
		if id != bundle.DispatcherUnit {
			if _, ok := rt.units[id]; !ok {
				t.Errorf("generated units missing %q", id)
			}
		}
	}
}

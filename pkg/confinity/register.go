// SPDX-License-Identifier: MPL-2.0

package confinity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/rohanprabhu-jm/confinity/internal/bundle"
	"github.com/rohanprabhu-jm/confinity/internal/dispatch"
	"github.com/rohanprabhu-jm/confinity/internal/protocol"
)

// reservedNamespace holds the dispatcher and generated builtin type units.
const reservedNamespace = "confinity."

type (
	// HandlerFunc is the confined logic behind an identifier.
	HandlerFunc[P, R any] func(ctx context.Context, payload P) (R, error)

	invocable struct {
		identifier  string
		payloadUnit string
		resultUnit  string
		deps        []string
		invoke      dispatch.InvokeFunc
	}
)

// Register adds fn under name. P and R are the payload and result types;
// their JSON Schemas become units of the sandbox image and payloads are
// validated against them before fn runs. deps names extra units, resolved
// through the Locator given with WithLocator, that every handler needs.
//
// Register fails with ErrLocked once Commit has started, ErrShuttingDown once
// Close has started, ErrDuplicate for a reused name or for a unit id that is a
// dotted prefix of another, and ErrInvalidName for a malformed name or
// dependency. All of them wrap ErrRegistration.
func Register[P, R any](rt *Runtime, name string, fn HandlerFunc[P, R], deps ...string) (*Handle[P, R], error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil handler for %q", ErrRegistration, name)
	}
	if !bundle.ValidIdentifier(name) || strings.HasPrefix(name, reservedNamespace) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, dep := range deps {
		if !bundle.ValidIdentifier(dep) {
			return nil, fmt.Errorf("%w: dependency %q of %q", ErrInvalidName, dep, name)
		}
	}

	inv, generated, err := newInvocable(name, fn, deps)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.shutting {
		return nil, ErrShuttingDown
	}
	if rt.state != stateOpen {
		return nil, ErrLocked
	}
	if _, dup := rt.names[name]; dup {
		return nil, fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	for id, data := range generated {
		if existing, ok := rt.units[id]; ok && !bytes.Equal(existing, data) {
			return nil, fmt.Errorf("%w: %q collides with unit %q", ErrDuplicate, name, id)
		}
	}
	if a, b, ok := rt.nestedUnit(generated, deps); ok {
		return nil, fmt.Errorf("%w: unit %q of %q overlaps unit %q", ErrDuplicate, a, name, b)
	}

	for id, data := range generated {
		rt.units[id] = data
	}
	rt.names[name] = struct{}{}
	rt.invocables = append(rt.invocables, inv)
	for _, dep := range deps {
		if !slices.Contains(rt.deps, dep) {
			rt.deps = append(rt.deps, dep)
		}
	}

	rt.logger.Debug("handler registered", "identifier", name, "payload", inv.payloadUnit, "result", inv.resultUnit)
	return &Handle[P, R]{rt: rt, identifier: name}, nil
}

// nestedUnit reports a new unit id that is a dotted prefix of, or is prefixed
// by, another unit id. Both would map to the same path in the bundle, once as
// a file and once as a directory. Caller holds rt.mu.
func (rt *Runtime) nestedUnit(generated map[string][]byte, deps []string) (string, string, bool) {
	incoming := slices.Sorted(maps.Keys(generated))
	incoming = append(incoming, deps...)

	known := slices.Collect(maps.Keys(rt.units))
	known = append(known, rt.deps...)
	known = append(known, bundle.DispatcherUnit)

	for i, a := range incoming {
		for _, b := range incoming[i+1:] {
			if nested(a, b) {
				return a, b, true
			}
		}
		for _, b := range known {
			if nested(a, b) {
				return a, b, true
			}
		}
	}
	return "", "", false
}

func nested(a, b string) bool {
	return strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}

// newInvocable builds the invocable and its generated units: the handler
// manifest and the payload and result schemas.
func newInvocable[P, R any](name string, fn HandlerFunc[P, R], deps []string) (*invocable, map[string][]byte, error) {
	inv := &invocable{
		identifier:  name,
		payloadUnit: typeUnit(reflect.TypeFor[P]()),
		resultUnit:  typeUnit(reflect.TypeFor[R]()),
		deps:        slices.Clone(deps),
		invoke: func(ctx context.Context, serialized string) (string, error) {
			var payload P
			if err := protocol.Decode(serialized, &payload); err != nil {
				return "", fmt.Errorf("%w: %w", dispatch.ErrPayload, err)
			}
			result, err := fn(ctx, payload)
			if err != nil {
				return "", err
			}
			return protocol.Encode(result)
		},
	}

	payloadSchema, err := schemaFor[P]()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: payload type of %q: %w", ErrRegistration, name, err)
	}
	resultSchema, err := schemaFor[R]()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: result type of %q: %w", ErrRegistration, name, err)
	}
	manifest, err := json.Marshal(dispatch.Manifest{
		Identifier: name,
		Payload:    inv.payloadUnit,
		Result:     inv.resultUnit,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: manifest of %q: %w", ErrRegistration, name, err)
	}

	generated := map[string][]byte{
		inv.payloadUnit: payloadSchema,
		inv.resultUnit:  resultSchema,
	}
	if _, clash := generated[name]; clash {
		return nil, nil, fmt.Errorf("%w: %q collides with its own type unit", ErrDuplicate, name)
	}
	generated[name] = manifest
	return inv, generated, nil
}

func schemaFor[T any]() ([]byte, error) {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// typeUnit names the schema unit of t: its package path and name as a dotted
// identifier, or a builtin name for unnamed and predeclared types.
func typeUnit(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return reservedNamespace + "builtin." + sanitize(t.String())
	}
	segments := strings.Split(t.PkgPath(), "/")
	segments = append(segments, t.Name())
	for i, s := range segments {
		segments[i] = sanitize(s)
	}
	return strings.Join(segments, ".")
}

// sanitize turns s into one or more valid identifier segments. Dots are kept
// so that host names in package paths split naturally.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	parts := strings.Split(b.String(), ".")
	for i, p := range parts {
		if p == "" || !(p[0] == '_' || (p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z')) {
			parts[i] = "_" + p
		}
	}
	return strings.Join(parts, ".")
}

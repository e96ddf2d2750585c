// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/rohanprabhu-jm/confinity/internal/demo"
	"github.com/rohanprabhu-jm/confinity/pkg/confinity"
)

var errBadPayload = errors.New("invalid JSON payload")

type (
	// caller decodes a JSON payload for one registered handler and returns
	// the call to make with it.
	caller func(payload []byte) (invocation, error)

	invocation func(ctx context.Context) (any, error)

	// builtins are the handlers every confinity process registers. The
	// host and the sandbox register the same set so identifiers match.
	builtins struct {
		greeter *confinity.Handle[demo.Payload, demo.Result]
		callers map[string]caller
	}
)

func registerBuiltins(rt *confinity.Runtime, out io.Writer) (*builtins, error) {
	greeter, err := demo.RegisterGreeter(rt, out)
	if err != nil {
		return nil, err
	}
	return &builtins{
		greeter: greeter,
		callers: map[string]caller{
			greeter.Identifier(): jsonCaller(greeter),
		},
	}, nil
}

func (b *builtins) names() []string {
	return slices.Sorted(maps.Keys(b.callers))
}

func jsonCaller[P, R any](h *confinity.Handle[P, R]) caller {
	return func(raw []byte) (invocation, error) {
		var payload P
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("%w: %w", errBadPayload, err)
		}
		return func(ctx context.Context) (any, error) {
			return h.Call(ctx, payload)
		}, nil
	}
}

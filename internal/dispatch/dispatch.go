// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/rohanprabhu-jm/confinity/internal/bundle"
	"github.com/rohanprabhu-jm/confinity/internal/protocol"
)

// Exit statuses of Serve.
const (
	ExitOK             = 0
	ExitUsage          = 2
	ExitUnknownHandler = 3
	ExitBadPayload     = 4
	ExitHandlerFailed  = 5
)

// UnitPathEnv names the directory holding the unit tree inside the sandbox.
const UnitPathEnv = "CONFINITY_UNIT_PATH"

var (
	// ErrUnknownHandler is returned for identifiers missing from the table or the unit tree.
	ErrUnknownHandler = errors.New("unknown handler")
	// ErrPayload is returned for payloads that fail decoding or validation.
	ErrPayload = errors.New("invalid payload")
)

type (
	// InvokeFunc runs a handler on a serialized payload and returns the
	// serialized result.
	InvokeFunc func(ctx context.Context, payload string) (string, error)

	// Entry binds an identifier to its descriptor units and implementation.
	Entry struct {
		Identifier  string
		PayloadUnit string
		ResultUnit  string
		Invoke      InvokeFunc
	}

	// Table maps identifiers to entries.
	Table map[string]Entry

	// Manifest is the handler unit written into the image for every invocable.
	Manifest struct {
		Identifier string `json:"identifier"`
		Payload    string `json:"payload"`
		Result     string `json:"result"`
	}

	// Options configures Serve.
	Options struct {
		// Units is the unit tree; nil reads the directory named by UnitPathEnv.
		Units  fs.FS
		Stdout io.Writer
		Stderr io.Writer
	}
)

// Add inserts e keyed by its identifier.
func (t Table) Add(e Entry) {
	t[e.Identifier] = e
}

// Serve handles one call. args is [identifier, serializedPayload]. The framed
// result is written to Stdout followed by a newline; diagnostics go to Stderr.
func Serve(ctx context.Context, table Table, args []string, opts Options) int {
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	if len(args) != 2 {
		fmt.Fprintf(stderr, "usage: <identifier> <payload>, got %d arguments\n", len(args))
		return ExitUsage
	}
	identifier, payload := args[0], args[1]

	units := opts.Units
	if units == nil {
		units = os.DirFS(os.Getenv(UnitPathEnv))
	}

	entry, err := resolve(table, units, identifier)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUnknownHandler
	}

	if err := validatePayload(units, entry.PayloadUnit, payload); err != nil {
		fmt.Fprintln(stderr, err)
		return ExitBadPayload
	}

	result, err := entry.Invoke(ctx, payload)
	if err != nil {
		fmt.Fprintf(stderr, "handler %s failed: %v\n", identifier, err)
		if errors.Is(err, ErrPayload) {
			return ExitBadPayload
		}
		return ExitHandlerFailed
	}

	framed, err := protocol.Frame(result)
	if err != nil {
		fmt.Fprintf(stderr, "handler %s: %v\n", identifier, err)
		return ExitHandlerFailed
	}
	if _, err := fmt.Fprintln(stdout, framed); err != nil {
		fmt.Fprintf(stderr, "write result: %v\n", err)
		return ExitHandlerFailed
	}
	return ExitOK
}

// resolve looks identifier up in the table and checks that the image carries
// a matching handler unit.
func resolve(table Table, units fs.FS, identifier string) (Entry, error) {
	entry, ok := table[identifier]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownHandler, identifier)
	}

	var m Manifest
	if err := readUnitJSON(units, identifier, &m); err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %w", ErrUnknownHandler, identifier, err)
	}
	if m.Identifier != identifier || m.Payload != entry.PayloadUnit || m.Result != entry.ResultUnit {
		return Entry{}, fmt.Errorf("%w: %s: manifest does not match the registered handler", ErrUnknownHandler, identifier)
	}
	return entry, nil
}

func validatePayload(units fs.FS, schemaUnit, payload string) error {
	var schema jsonschema.Schema
	if err := readUnitJSON(units, schemaUnit, &schema); err != nil {
		return fmt.Errorf("%w: load schema %s: %w", ErrPayload, schemaUnit, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("%w: resolve schema %s: %w", ErrPayload, schemaUnit, err)
	}

	var decoded any
	if err := protocol.Decode(payload, &decoded); err != nil {
		return fmt.Errorf("%w: %w", ErrPayload, err)
	}
	instance, err := jsonValue(decoded)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPayload, err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("%w: %w", ErrPayload, err)
	}
	return nil
}

// jsonValue normalizes a decoded CBOR value to the JSON value model the
// validator expects.
func jsonValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readUnitJSON(units fs.FS, id string, v any) error {
	p, err := bundle.UnitPath(id)
	if err != nil {
		return err
	}
	data, err := fs.ReadFile(units, p)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

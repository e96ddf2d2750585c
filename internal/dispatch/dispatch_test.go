// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/rohanprabhu-jm/confinity/internal/protocol"
)

type (
	echoPayload struct {
		Name string `json:"name"`
	}

	echoResult struct {
		Greeting string `json:"greeting"`
	}
)

const (
	echoID      = "demo.Echo"
	payloadUnit = "demo.EchoPayload"
	resultUnit  = "demo.EchoResult"
)

func schemaJSON[T any](t *testing.T) []byte {
	t.Helper()
	s, err := jsonschema.For[T](nil)
	if err != nil {
		t.Fatalf("jsonschema.For: %v", err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	return data
}

func testUnits(t *testing.T) fstest.MapFS {
	t.Helper()
	manifest, err := json.Marshal(Manifest{Identifier: echoID, Payload: payloadUnit, Result: resultUnit})
	if err != nil {
		t.Fatal(err)
	}
	return fstest.MapFS{
		"demo/Echo":        {Data: manifest},
		"demo/EchoPayload": {Data: schemaJSON[echoPayload](t)},
		"demo/EchoResult":  {Data: schemaJSON[echoResult](t)},
	}
}

func testTable(invoke InvokeFunc) Table {
	if invoke == nil {
		invoke = func(_ context.Context, payload string) (string, error) {
			var p echoPayload
			if err := protocol.Decode(payload, &p); err != nil {
				return "", err
			}
			return protocol.Encode(echoResult{Greeting: "Hello " + p.Name})
		}
	}
	t := Table{}
	t.Add(Entry{Identifier: echoID, PayloadUnit: payloadUnit, ResultUnit: resultUnit, Invoke: invoke})
	return t
}

func encode(t *testing.T, v any) string {
	t.Helper()
	s, err := protocol.Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestServe_Success(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := Serve(context.Background(), testTable(nil),
		[]string{echoID, encode(t, echoPayload{Name: "rohan1"})},
		Options{Units: testUnits(t), Stdout: &stdout, Stderr: &stderr})

	if code != ExitOK {
		t.Fatalf("Serve() = %d, want %d; stderr: %s", code, ExitOK, stderr.String())
	}
	if !strings.HasSuffix(stdout.String(), "\n") {
		t.Errorf("stdout should end with a newline: %q", stdout.String())
	}
	var res echoResult
	if err := protocol.DecodeOutput(stdout.String(), &res); err != nil {
		t.Fatalf("DecodeOutput: %v", err)
	}
	if res.Greeting != "Hello rohan1" {
		t.Errorf("Greeting = %q", res.Greeting)
	}
}

func TestServe_Failures(t *testing.T) {
	t.Parallel()

	good := encode(t, echoPayload{Name: "x"})
	tests := []struct {
		name   string
		args   []string
		units  func(fstest.MapFS)
		invoke InvokeFunc
		want   int
	}{
		{name: "no arguments", args: nil, want: ExitUsage},
		{name: "one argument", args: []string{echoID}, want: ExitUsage},
		{name: "extra argument", args: []string{echoID, good, "x"}, want: ExitUsage},
		{name: "unregistered identifier", args: []string{"demo.Missing", good}, want: ExitUnknownHandler},
		{
			name:  "handler unit missing from image",
			args:  []string{echoID, good},
			units: func(m fstest.MapFS) { delete(m, "demo/Echo") },
			want:  ExitUnknownHandler,
		},
		{
			name: "manifest mismatch",
			args: []string{echoID, good},
			units: func(m fstest.MapFS) {
				data, _ := json.Marshal(Manifest{Identifier: echoID, Payload: "demo.Other", Result: resultUnit})
				m["demo/Echo"] = &fstest.MapFile{Data: data}
			},
			want: ExitUnknownHandler,
		},
		{name: "payload not base64", args: []string{echoID, "%%%"}, want: ExitBadPayload},
		{name: "payload fails schema", args: []string{echoID, encode(t, map[string]any{"name": 42})}, want: ExitBadPayload},
		{
			name:  "schema unit missing",
			args:  []string{echoID, good},
			units: func(m fstest.MapFS) { delete(m, "demo/EchoPayload") },
			want:  ExitBadPayload,
		},
		{
			name:   "handler error",
			args:   []string{echoID, good},
			invoke: func(context.Context, string) (string, error) { return "", errors.New("boom") },
			want:   ExitHandlerFailed,
		},
		{
			name: "result contains sentinel",
			args: []string{echoID, good},
			invoke: func(context.Context, string) (string, error) {
				return "x" + protocol.StartToken, nil
			},
			want: ExitHandlerFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			units := testUnits(t)
			if tt.units != nil {
				tt.units(units)
			}
			var stdout, stderr bytes.Buffer
			code := Serve(context.Background(), testTable(tt.invoke), tt.args,
				Options{Units: units, Stdout: &stdout, Stderr: &stderr})
			if code != tt.want {
				t.Errorf("Serve() = %d, want %d; stderr: %s", code, tt.want, stderr.String())
			}
			if stdout.Len() != 0 {
				t.Errorf("stdout should be empty on failure, got %q", stdout.String())
			}
		})
	}
}

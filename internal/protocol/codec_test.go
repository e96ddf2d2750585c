// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

type greeting struct {
	Greeting     string   `json:"greeting"`
	Alternatives []string `json:"alternatives,omitempty"`
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	in := greeting{Greeting: "Hello, rohan1", Alternatives: []string{"Beinvenu, rohan1"}}
	enc, err := Encode(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.ContainsAny(enc, "_\n ") {
		t.Errorf("encoding %q must be argv and frame safe", enc)
	}

	var out greeting
	if err := Decode(enc, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Greeting != in.Greeting || !slices.Equal(out.Alternatives, in.Alternatives) {
		t.Errorf("Decode() = %+v, want %+v", out, in)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	t.Parallel()

	m := map[string]any{"b": 1, "a": "x", "c": []any{true, 2.5}}
	first, err := Encode(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range 10 {
		again, err := Encode(m)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again != first {
			t.Fatalf("encoding not deterministic: %q != %q", again, first)
		}
	}
}

func TestDecode_GenericMap(t *testing.T) {
	t.Parallel()

	enc, err := Encode(greeting{Greeting: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var generic any
	if err := Decode(enc, &generic); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := generic.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", generic)
	}
	if m["greeting"] != "hi" {
		t.Errorf("greeting = %v, want hi", m["greeting"])
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "not base64", input: "!!!"},
		{name: "not cbor", input: "/w=="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out greeting
			err := Decode(tt.input, &out)
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected *DecodeError, got %v", err)
			}
			if decErr.Reason != ReasonMalformed {
				t.Errorf("Reason = %q, want %q", decErr.Reason, ReasonMalformed)
			}
		})
	}
}

func TestDecodeOutput(t *testing.T) {
	t.Parallel()

	enc, err := Encode(greeting{Greeting: "Hello, rohan1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	framed, err := Frame(enc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out greeting
	if err := DecodeOutput("I'm shouting into nowhere!!\n"+framed+"\n", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Greeting != "Hello, rohan1" {
		t.Errorf("Greeting = %q, want %q", out.Greeting, "Hello, rohan1")
	}

	if err := DecodeOutput("nothing here", &out); !errors.Is(err, ErrDecode) {
		t.Errorf("DecodeOutput() error = %v, want ErrDecode", err)
	}
}

// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestExtract_RoundTrip(t *testing.T) {
	t.Parallel()

	payloads := []string{
		"",
		"eyJncmVldGluZyI6IkhlbGxvIn0=",
		"plain text with spaces",
		"_CONF_BOUNDARY",
		"ends with underscore_",
		"multi\nline\nvalue",
	}
	surroundings := []struct {
		prefix string
		suffix string
	}{
		{"", ""},
		{"I'm shouting into nowhere!!\n", "\n"},
		{"log line\nanother one\n", "trailing noise _CONF_BOUNDARY__ again"},
		{"__CONF_BOUNDARY\n", ""},
	}

	for _, p := range payloads {
		for _, s := range surroundings {
			framed, err := Frame(p)
			if err != nil {
				t.Fatalf("Frame(%q) unexpected error: %v", p, err)
			}
			got, err := Extract(s.prefix + framed + s.suffix)
			if err != nil {
				t.Fatalf("Extract(%q) unexpected error: %v", s.prefix+framed+s.suffix, err)
			}
			if got != p {
				t.Errorf("Extract() = %q, want %q (prefix %q suffix %q)", got, p, s.prefix, s.suffix)
			}
		}
	}
}

func TestExtract_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		reason DecodeReason
	}{
		{name: "empty output", output: "", reason: ReasonMissingStart},
		{name: "diagnostics only", output: "I'm shouting into nowhere!!\n", reason: ReasonMissingStart},
		{name: "end token only", output: "abc" + EndToken, reason: ReasonMissingStart},
		{name: "start token only", output: StartToken + "abc", reason: ReasonMissingEnd},
		{name: "end before start", output: EndToken + "abc" + StartToken + "def", reason: ReasonMissingEnd},
		{name: "tokens overlap", output: "__CONF_BOUNDARY__", reason: ReasonMissingEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Extract(tt.output)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrDecode) {
				t.Errorf("errors.Is(err, ErrDecode) = false for %v", err)
			}
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if decErr.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", decErr.Reason, tt.reason)
			}
		})
	}
}

func TestExtract_FirstFrameWins(t *testing.T) {
	t.Parallel()

	output := StartToken + "first" + EndToken + StartToken + "second" + EndToken
	got, err := Extract(output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "first" {
		t.Errorf("Extract() = %q, want %q", got, "first")
	}
}

func TestExtract_ExcerptIsBounded(t *testing.T) {
	t.Parallel()

	_, err := Extract(strings.Repeat("x", 4*excerptLimit))
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if len(decErr.Excerpt) > excerptLimit+3 {
		t.Errorf("excerpt length = %d, want <= %d", len(decErr.Excerpt), excerptLimit+3)
	}
}

func TestFrame_RejectsTokens(t *testing.T) {
	t.Parallel()

	for _, v := range []string{StartToken, "x" + EndToken, "x_CONF_BOUNDARY_", "_CONF_BOUNDARY_"} {
		if _, err := Frame(v); !errors.Is(err, ErrSentinelInPayload) {
			t.Errorf("Frame(%q) error = %v, want ErrSentinelInPayload", v, err)
		}
	}
}

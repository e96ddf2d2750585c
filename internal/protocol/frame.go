// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// StartToken opens the result frame.
	StartToken = "__CONF_BOUNDARY_"
	// EndToken closes the result frame.
	EndToken = "_CONF_BOUNDARY__"

	excerptLimit = 512
)

var (
	// ErrDecode is the sentinel error wrapped by DecodeError.
	ErrDecode = errors.New("result protocol violated")

	// ErrSentinelInPayload is returned by Frame when the value contains a token.
	ErrSentinelInPayload = errors.New("value contains a boundary token")
)

// DecodeReason describes why a frame could not be extracted or decoded.
type DecodeReason string

const (
	ReasonMissingStart DecodeReason = "start token not found"
	ReasonMissingEnd   DecodeReason = "end token not found after start token"
	ReasonMalformed    DecodeReason = "framed result is not a valid encoding"
)

// DecodeError is returned when captured output does not carry a well-formed
// result frame. Excerpt holds a bounded prefix of the captured output for
// debugging; it is never parsed.
type DecodeError struct {
	Reason  DecodeReason
	Excerpt string
	Err     error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrDecode, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports ErrDecode so callers can match the kind with errors.Is.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func (e *DecodeError) Unwrap() error { return e.Err }

// Frame wraps s between the boundary tokens.
func Frame(s string) (string, error) {
	if strings.Contains(s, StartToken) || strings.Contains(s, EndToken) {
		return "", ErrSentinelInPayload
	}
	framed := StartToken + s + EndToken
	// The tokens overlap, so a payload ending in a partial token can shift
	// where Extract finds the end.
	if got, err := Extract(framed); err != nil || got != s {
		return "", ErrSentinelInPayload
	}
	return framed, nil
}

// Extract returns the text strictly between the first start token and the
// first end token that follows it. The search for the end token begins after
// the start token because the two tokens overlap ("_CONF_BOUNDARY_").
func Extract(output string) (string, error) {
	start := strings.Index(output, StartToken)
	if start < 0 {
		return "", &DecodeError{Reason: ReasonMissingStart, Excerpt: excerpt(output)}
	}
	body := start + len(StartToken)
	end := strings.Index(output[body:], EndToken)
	if end < 0 {
		return "", &DecodeError{Reason: ReasonMissingEnd, Excerpt: excerpt(output)}
	}
	return output[body : body+end], nil
}

func excerpt(s string) string {
	if len(s) <= excerptLimit {
		return s
	}
	return s[:excerptLimit] + "..."
}

// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"encoding/base64"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode serializes v as base64-wrapped deterministic CBOR. Struct fields are
// keyed by their cbor tag, falling back to the json tag.
func Encode(v any) (string, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %T: %w", v, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode reverses Encode into v. Maps without a concrete Go type decode as
// map[string]any.
func Decode(s string, v any) error {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return &DecodeError{Reason: ReasonMalformed, Excerpt: excerpt(s), Err: err}
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return &DecodeError{Reason: ReasonMalformed, Excerpt: excerpt(s), Err: err}
	}
	return nil
}

// DecodeOutput extracts the framed result from captured output and decodes it into v.
func DecodeOutput(output string, v any) error {
	framed, err := Extract(output)
	if err != nil {
		return err
	}
	return Decode(framed, v)
}

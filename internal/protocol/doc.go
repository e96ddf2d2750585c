// SPDX-License-Identifier: MPL-2.0

// Package protocol implements the result protocol spoken between the host and
// a sandboxed handler: the handler prints its serialized result between two
// sentinel tokens on standard output, and the host extracts the bracketed
// region while ignoring everything else the process printed.
//
// Payloads and results are encoded as Core Deterministic CBOR wrapped in
// standard base64 so they survive process arguments and log transport.
package protocol

// SPDX-License-Identifier: MPL-2.0

// Package dispatch is the sandbox side of a call. The container entrypoint
// receives [identifier, payload], resolves the handler from the unit tree
// baked into the image, validates the payload against its schema unit and
// prints the framed result on standard output.
package dispatch

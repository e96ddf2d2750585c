// SPDX-License-Identifier: MPL-2.0

// Package image turns a staging layout into the sandbox image: the packed
// unit tree and the vendored libraries become two layers on a minimal base
// image, with the dispatcher as the fixed entrypoint.
package image

// SPDX-License-Identifier: MPL-2.0

// Package invoke runs exactly one call in one fresh container: create, track
// for reclamation, start, wait, read standard output. It never reuses or
// pools containers and never retries.
package invoke

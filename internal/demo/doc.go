// SPDX-License-Identifier: MPL-2.0

// Package demo holds the handlers the confinity CLI registers: a greeter
// that writes a diagnostic line before returning, used by the demo command
// and the end-to-end tests.
package demo

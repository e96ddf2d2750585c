// SPDX-License-Identifier: MPL-2.0

// Package testutil provides test doubles shared across packages: an
// in-memory container engine that can execute the dispatcher in-process, a
// manually advanced clock, and a semaphore bounding real container tests.
package testutil

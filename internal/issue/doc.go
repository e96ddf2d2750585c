// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of rendered
// troubleshooting guides for the failures users hit most often: a missing
// container engine, an incomplete bundle, a failed image build, a sandbox
// that violated the result protocol and an unreadable configuration file.
package issue

// SPDX-License-Identifier: MPL-2.0

// Package bundle stages the artifact closure of a committed registry.
//
// Every code unit is identified by a dotted identifier and written to its
// package-mirroring path under classes/ ("demo.Greeter" becomes
// classes/demo/Greeter). Vendored support files from an explicit manifest are
// copied into libs/ with staging-only suffixes translated back to their
// loadable form. The classes/ subtree is then packed into one deterministic
// gzip-compressed tar archive whose entry names are relative to classes/.
//
// Staging layout:
//
//	<dir>/
//	├── classes/            unit tree
//	├── libs/               vendored files
//	└── confinity.tar.gz    classes/ packed
package bundle

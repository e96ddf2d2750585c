// SPDX-License-Identifier: MPL-2.0

// Package container is the thin client confinity uses to talk to a container
// engine. It knows how to build an image, create, start and wait on a
// network-disabled container, fetch its standard output and force-delete the
// container or image afterwards. It contains no business logic.
//
// Three engines implement the Engine interface: APIEngine speaks the Docker
// Engine REST API through the official Go SDK, while DockerEngine and
// PodmanEngine drive the engine CLIs and share BaseCLIEngine for argument
// construction and command execution.
//
// Engine selection uses NewEngine(EngineType, ...) with automatic fallback
// between the CLI engines, or AutoDetectEngine() for preference-less
// detection (the API engine is tried first).
package container

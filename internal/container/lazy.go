// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"sync"
)

// ResolveFunc constructs the engine a LazyEngine delegates to.
type ResolveFunc func(ctx context.Context) (Engine, error)

// LazyEngine defers engine construction until the first operation that needs
// it. Processes that never touch the engine, such as the in-sandbox
// dispatcher, never probe for one. A failed resolution is retried on the next
// operation.
type LazyEngine struct {
	name    string
	resolve ResolveFunc

	mu     sync.Mutex
	engine Engine
}

// NewLazyEngine creates a LazyEngine reporting name until resolved.
func NewLazyEngine(name string, resolve ResolveFunc) *LazyEngine {
	return &LazyEngine{name: name, resolve: resolve}
}

// Resolve returns the underlying engine, constructing it if needed.
func (e *LazyEngine) Resolve(ctx context.Context) (Engine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.engine != nil {
		return e.engine, nil
	}
	engine, err := e.resolve(ctx)
	if err != nil {
		return nil, err
	}
	e.engine = engine
	return engine, nil
}

// Name returns the resolved engine's name, or the configured name before resolution.
func (e *LazyEngine) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.engine != nil {
		return e.engine.Name()
	}
	return e.name
}

// Available resolves the engine and probes it.
func (e *LazyEngine) Available(ctx context.Context) bool {
	engine, err := e.Resolve(ctx)
	return err == nil && engine.Available(ctx)
}

func (e *LazyEngine) Build(ctx context.Context, opts BuildOptions) (ImageID, error) {
	engine, err := e.Resolve(ctx)
	if err != nil {
		return "", callError(e.name, OpBuild, string(opts.Tag), err)
	}
	return engine.Build(ctx, opts)
}

func (e *LazyEngine) Create(ctx context.Context, opts CreateOptions) (ContainerID, error) {
	engine, err := e.Resolve(ctx)
	if err != nil {
		return "", callError(e.name, OpCreate, opts.Image, err)
	}
	return engine.Create(ctx, opts)
}

func (e *LazyEngine) Start(ctx context.Context, id ContainerID) error {
	engine, err := e.Resolve(ctx)
	if err != nil {
		return callError(e.name, OpStart, string(id), err)
	}
	return engine.Start(ctx, id)
}

func (e *LazyEngine) Wait(ctx context.Context, id ContainerID) (int, error) {
	engine, err := e.Resolve(ctx)
	if err != nil {
		return 0, callError(e.name, OpWait, string(id), err)
	}
	return engine.Wait(ctx, id)
}

func (e *LazyEngine) Logs(ctx context.Context, id ContainerID) (string, error) {
	engine, err := e.Resolve(ctx)
	if err != nil {
		return "", callError(e.name, OpLogs, string(id), err)
	}
	return engine.Logs(ctx, id)
}

func (e *LazyEngine) Remove(ctx context.Context, id ContainerID, force bool) error {
	engine, err := e.Resolve(ctx)
	if err != nil {
		return callError(e.name, OpRemove, string(id), err)
	}
	return engine.Remove(ctx, id, force)
}

func (e *LazyEngine) RemoveImage(ctx context.Context, id ImageID, force bool) error {
	engine, err := e.Resolve(ctx)
	if err != nil {
		return callError(e.name, OpRemoveImage, string(id), err)
	}
	return engine.RemoveImage(ctx, id, force)
}

// Close closes the resolved engine when it holds resources.
func (e *LazyEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if closer, ok := e.engine.(EngineCloser); ok {
		return closer.Close()
	}
	return nil
}

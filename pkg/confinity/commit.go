// SPDX-License-Identifier: MPL-2.0

package confinity

import (
	"context"
	"time"

	"github.com/rohanprabhu-jm/confinity/internal/bundle"
	"github.com/rohanprabhu-jm/confinity/internal/container"
	"github.com/rohanprabhu-jm/confinity/internal/issue"
)

// Commit locks the registry and builds the sandbox image. The closure is the
// dispatcher executable, every dependency passed to Register and the
// manifest, payload and result units of every handler.
//
// Commit fails with ErrAlreadyCommitted when the runtime is locked or another
// Commit is in progress and with ErrShuttingDown once Close has started.
// Bundling and build failures wrap ErrBundling and ErrImageBuild; the
// registry is then open again and nothing has been tracked.
func (rt *Runtime) Commit(ctx context.Context) error {
	rt.mu.Lock()
	if rt.shutting {
		rt.mu.Unlock()
		return ErrShuttingDown
	}
	if rt.state != stateOpen {
		rt.mu.Unlock()
		return ErrAlreadyCommitted
	}
	rt.state = stateCommitting
	rt.commits.Add(1)
	closure := rt.closureLocked()
	units := rt.snapshotUnits()
	rt.mu.Unlock()
	defer rt.commits.Done()

	started := time.Now()
	layout, id, err := rt.buildImage(ctx, closure, units)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err != nil {
		rt.state = stateOpen
		return err
	}
	rt.targets.TrackImage(id)
	rt.image = id
	rt.layout = layout
	rt.state = stateLocked

	rt.logger.Info("runtime committed",
		"image", id,
		"handlers", len(rt.invocables),
		"units", len(layout.Units),
		"duration", time.Since(started))
	return nil
}

func (rt *Runtime) closureLocked() []string {
	closure := make([]string, 0, 1+len(rt.deps)+3*len(rt.invocables))
	closure = append(closure, bundle.DispatcherUnit)
	closure = append(closure, rt.deps...)
	for _, inv := range rt.invocables {
		closure = append(closure, inv.identifier, inv.payloadUnit, inv.resultUnit)
	}
	return closure
}

func (rt *Runtime) buildImage(ctx context.Context, closure []string, units bundle.MapLocator) (*bundle.Layout, container.ImageID, error) {
	locators := bundle.Chain{units}
	if rt.settings.locator != nil {
		locators = append(locators, rt.settings.locator)
	}
	locators = append(locators, bundle.ExecutableLocator{})

	bundler := bundle.New(locators,
		bundle.WithStagingParent(rt.settings.stagingDir),
		bundle.WithSuffixes(rt.settings.suffixes),
		bundle.WithLogger(rt.logger))

	layout, err := bundler.Bundle(ctx, closure, rt.settings.vendored)
	if err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("bundle handlers").
			WithSuggestions(
				"Check that every dependency passed to Register can be located",
				"Check that vendored files exist and have distinct names",
			).
			WithIssue(issue.BundlingFailedId).
			Wrap(err).
			BuildError()
	}

	id, err := rt.builder.Build(ctx, layout, rt.settings.imageName)
	if err != nil {
		if rmErr := layout.Remove(); rmErr != nil {
			rt.logger.Debug("could not remove staging directory", "path", layout.Dir, "error", rmErr)
		}
		return nil, "", err
	}
	return layout, id, nil
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/rohanprabhu-jm/confinity/internal/bundle"
	"github.com/rohanprabhu-jm/confinity/internal/config"
	"github.com/rohanprabhu-jm/confinity/internal/testutil"
	"github.com/rohanprabhu-jm/confinity/pkg/confinity"
)

// testCLI runs command trees against a fake engine whose containers run
// `confinity internal dispatch` in-process, the way the sandbox image does.
type testCLI struct {
	engine *testutil.FakeEngine
	stdout bytes.Buffer
	stderr bytes.Buffer
	deps   Dependencies
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()

	c := &testCLI{engine: testutil.NewFakeEngine(t)}
	staging := t.TempDir()
	c.deps = Dependencies{
		Stdout:    &c.stdout,
		Stderr:    &c.stderr,
		Environ:   []string{},
		ConfigDir: t.TempDir(),
		NewRuntime: func(cfg *config.Config, opts ...confinity.Option) (*confinity.Runtime, error) {
			return confinity.NewFromConfig(cfg, append(opts,
				confinity.WithEngine(c.engine),
				confinity.WithLocator(bundle.MapLocator{bundle.DispatcherUnit: []byte("confinity")}),
				confinity.WithCleanupInterval(0),
				confinity.WithStagingDir(staging),
			)...)
		},
	}
	c.engine.Runner = func(ctx context.Context, run testutil.FakeRun) (string, int) {
		var out bytes.Buffer
		err := execute(ctx, Dependencies{
			Stdout:  &out,
			Stderr:  io.Discard,
			Units:   os.DirFS(run.UnitDir),
			Environ: []string{},
		}, append([]string{"internal", "dispatch"}, run.Args...)...)
		return out.String(), exitCode(err)
	}
	return c
}

func (c *testCLI) run(args ...string) error {
	return execute(context.Background(), c.deps, args...)
}

func execute(ctx context.Context, deps Dependencies, args ...string) error {
	root := newRootCommand(NewApp(deps))
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

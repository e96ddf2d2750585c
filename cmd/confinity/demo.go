// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rohanprabhu-jm/confinity/internal/demo"
	"github.com/rohanprabhu-jm/confinity/pkg/confinity"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	defaultDemoCount  = 20
	defaultDemoPrefix = "rohan"
)

var errInvalidCount = errors.New("count must be at least 1")

type (
	// buildFlags tune the image build of commands that commit.
	buildFlags struct {
		noCache bool
	}

	demoOptions struct {
		build  buildFlags
		count  int
		prefix string
	}
)

func (f *buildFlags) addFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&f.noCache, "no-cache", false, "build the sandbox image without the layer cache")
}

// options returns the Runtime options the flags select. Verbose runs
// stream build progress to stderr.
func (f *buildFlags) options(app *App) []confinity.Option {
	opts := []confinity.Option{confinity.WithNoCache(f.noCache)}
	if app.verbose {
		opts = append(opts, confinity.WithBuildOutput(app.stderr))
	}
	return opts
}

func (o *demoOptions) addFlags(fs *pflag.FlagSet) {
	o.build.addFlags(fs)
	fs.IntVarP(&o.count, "count", "n", defaultDemoCount, "number of calls to make")
	fs.StringVar(&o.prefix, "prefix", defaultDemoPrefix, "subject prefix; call i greets <prefix><i>")
}

func newDemoCommand(app *App) *cobra.Command {
	opts := &demoOptions{}
	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Commit the greeter and call it repeatedly",
		Long: `Register the greeter, build the sandbox image and call the greeter
--count times, one container per call. Each result is printed with its
latency, followed by the average.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), app, cmd.OutOrStdout(), opts)
		},
	}
	opts.addFlags(demoCmd.Flags())
	return demoCmd
}

func runDemo(ctx context.Context, app *App, out io.Writer, opts *demoOptions) error {
	if opts.count < 1 {
		return fmt.Errorf("%w: %d", errInvalidCount, opts.count)
	}

	rt, b, err := app.runtime(out, opts.build.options(app)...)
	if err != nil {
		return err
	}
	// Close sweeps every container and image on all paths, interrupts included.
	defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

	if err := rt.Commit(ctx); err != nil {
		renderIssue(app.stderr, err)
		return err
	}

	var total time.Duration
	for i := 1; i <= opts.count; i++ {
		start := time.Now()
		res, err := b.greeter.Call(ctx, demo.Payload{Subject: fmt.Sprintf("%s%d", opts.prefix, i)})
		elapsed := time.Since(start)
		if err != nil {
			renderIssue(app.stderr, err)
			return err
		}
		total += elapsed
		fmt.Fprintf(out, "> %s %s\n", res, latencyStyle.Render(elapsed.Round(time.Millisecond).String()))
	}

	avg := total / time.Duration(opts.count)
	fmt.Fprintf(out, "%s %.3fs\n", TitleStyle.Render("Average time:"), avg.Seconds())
	return nil
}

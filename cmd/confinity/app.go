// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/rohanprabhu-jm/confinity/internal/config"
	"github.com/rohanprabhu-jm/confinity/pkg/confinity"
)

type (
	// RuntimeFactory creates the Runtime a command works against.
	RuntimeFactory func(cfg *config.Config, opts ...confinity.Option) (*confinity.Runtime, error)

	// Dependencies are the collaborators a command tree is built from.
	// Zero values select the production implementations.
	Dependencies struct {
		Config     config.Provider
		NewRuntime RuntimeFactory
		Stdout     io.Writer
		Stderr     io.Writer
		// Units replaces the CONFINITY_UNIT_PATH directory for the
		// dispatch entry point when set.
		Units fs.FS
		// Environ replaces the process environment for configuration
		// overrides when non-nil.
		Environ []string
		// ConfigDir overrides the configuration directory lookup.
		ConfigDir string
	}

	// App is the CLI composition root. It holds per-invocation state, so
	// each command tree gets its own.
	App struct {
		config     config.Provider
		newRuntime RuntimeFactory
		stdout     io.Writer
		stderr     io.Writer
		units      fs.FS
		environ    []string
		configDir  string

		verbose bool
		cfgFile string

		cfg    *config.Config
		logger *slog.Logger
	}
)

// NewApp wires an App from deps.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.NewRuntime == nil {
		deps.NewRuntime = confinity.NewFromConfig
	}

	return &App{
		config:     deps.Config,
		newRuntime: deps.NewRuntime,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
		units:      deps.Units,
		environ:    deps.Environ,
		configDir:  deps.ConfigDir,
		cfg:        config.DefaultConfig(),
		logger:     slog.New(newLogHandler(deps.Stderr, "", false)),
	}
}

func (a *App) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		ConfigFilePath: a.cfgFile,
		ConfigDirPath:  a.configDir,
		Environ:        a.environ,
	}
}

// loadConfig reads configuration and installs the logger it selects. A
// configuration that fails to load is reported and replaced by defaults.
func (a *App) loadConfig(ctx context.Context) {
	cfg, err := a.config.Load(ctx, a.loadOptions())
	if err != nil {
		cfg = config.DefaultConfig()
	}
	a.cfg = cfg
	a.logger = slog.New(newLogHandler(a.stderr, cfg.Log.Level, a.verbose))
	if err != nil {
		fmt.Fprintln(a.stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, a.verbose))
		renderIssue(a.stderr, err)
	}
}

// runtime creates a Runtime from the loaded configuration with the
// builtin handlers registered. The caller closes it.
func (a *App) runtime(out io.Writer, opts ...confinity.Option) (*confinity.Runtime, *builtins, error) {
	opts = append([]confinity.Option{confinity.WithLogger(a.logger)}, opts...)
	rt, err := a.newRuntime(a.cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	b, err := registerBuiltins(rt, out)
	if err != nil {
		_ = rt.Close(context.Background())
		return nil, nil, err
	}
	return rt, b, nil
}

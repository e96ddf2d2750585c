// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/rohanprabhu-jm/confinity/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `confinity config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage confinity configuration",
		Long: `Manage confinity configuration.

Configuration is stored in:
  - Linux: ~/.config/confinity/config.cue
  - macOS: ~/Library/Application Support/confinity/config.cue
  - Windows: %APPDATA%\confinity\config.cue

Every key can be overridden with a CONFINITY_* environment variable,
for example CONFINITY_ENGINE=podman or CONFINITY_STAGING_KEEP=true.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context(), app, cmd.OutOrStdout())
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app, cmd.OutOrStdout(), force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.FilePath(app.loadOptions())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	var format string
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.config.Load(cmd.Context(), app.loadOptions())
			if err != nil {
				renderIssue(app.stderr, err)
				return err
			}
			out, err := config.Dump(cfg, config.Format(format))
			if err != nil {
				return &ExitError{Code: exitUsage, Err: err}
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	dumpCmd.Flags().StringVarP(&format, "format", "f", string(config.FormatCUE),
		fmt.Sprintf("output format (%s)", joinFormats(config.Formats())))
	cfgCmd.AddCommand(dumpCmd)

	return cfgCmd
}

func joinFormats(formats []config.Format) string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return strings.Join(names, "|")
}

func showConfig(ctx context.Context, app *App, out io.Writer) error {
	loaded, err := config.LoadWithSource(ctx, app.loadOptions())
	if err != nil {
		renderIssue(app.stderr, err)
		return err
	}
	cfg := loaded.Config

	keyStyle := KeyStyle
	valueStyle := SuccessStyle
	row := func(key string, value any) {
		fmt.Fprintf(out, "%s: %s\n", keyStyle.Render(key), valueStyle.Render(fmt.Sprint(value)))
	}
	placeholder := func(key, text string) {
		fmt.Fprintf(out, "%s: %s\n", keyStyle.Render(key), SubtitleStyle.Render(text))
	}

	fmt.Fprintln(out, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(out)
	if loaded.Path != "" {
		fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Config file"), loaded.Path)
	} else {
		placeholder("Config file", "(using defaults)")
	}
	fmt.Fprintln(out)

	row("engine", cfg.Engine)
	if cfg.EngineHost != "" {
		row("engine_host", cfg.EngineHost)
	} else {
		placeholder("engine_host", "(engine default)")
	}
	row("image_name", cfg.ImageName)
	row("base_image", cfg.BaseImage)
	row("cleanup_interval", cfg.CleanupInterval)
	row("cleanup_concurrency", cfg.CleanupConcurrency)
	row("leak_after", cfg.LeakAfter)
	row("call_timeout", cfg.CallTimeout)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("staging"))
	if cfg.Staging.Dir != "" {
		fmt.Fprintf(out, "  dir: %s\n", valueStyle.Render(cfg.Staging.Dir))
	} else {
		fmt.Fprintf(out, "  dir: %s\n", SubtitleStyle.Render("(system temp dir)"))
	}
	fmt.Fprintf(out, "  keep: %s\n", valueStyle.Render(fmt.Sprint(cfg.Staging.Keep)))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("vendored"))
	if len(cfg.Vendored) == 0 {
		fmt.Fprintf(out, "  %s\n", SubtitleStyle.Render("(none configured)"))
	}
	for _, path := range cfg.Vendored {
		fmt.Fprintf(out, "  - %s\n", valueStyle.Render(path))
	}

	fmt.Fprintf(out, "%s:\n", keyStyle.Render("vendored_suffixes"))
	for _, from := range slices.Sorted(maps.Keys(cfg.VendoredSuffixes)) {
		fmt.Fprintf(out, "  %s -> %s\n", from, valueStyle.Render(cfg.VendoredSuffixes[from]))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("log"))
	fmt.Fprintf(out, "  level: %s\n", valueStyle.Render(cfg.Log.Level))

	return nil
}

func initConfig(app *App, out io.Writer, force bool) error {
	path, created, err := config.Init(app.loadOptions(), force)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if !created {
		fmt.Fprintf(out, "%s Configuration already exists at %s (use --force to overwrite)\n", WarningStyle.Render("!"), path)
		return nil
	}
	fmt.Fprintf(out, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"log/slog"

	"github.com/rohanprabhu-jm/confinity/pkg/confinity"

	"github.com/spf13/cobra"
)

// newInternalCommand creates the parent of the hidden commands the sandbox
// image runs. They never load configuration or reach a container engine.
func newInternalCommand(app *App) *cobra.Command {
	internalCmd := &cobra.Command{
		Use:    "internal",
		Short:  "Internal commands (not for direct use)",
		Hidden: true,
		// Replaces the root hook: the sandbox has no configuration to load.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.logger = slog.New(newLogHandler(app.stderr, "warn", false))
			return nil
		},
	}

	internalCmd.AddCommand(&cobra.Command{
		Use:   "dispatch <identifier> <payload>",
		Short: "Serve one call inside the sandbox",
		// The payload is base64 text and must never be parsed as flags.
		DisableFlagParsing: true,
		Args:               cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := app.runtime(cmd.OutOrStdout(), confinity.WithCleanupInterval(0))
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(cmd.Context()) }()

			if code := rt.DispatchFS(cmd.Context(), app.units, args, cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	})

	return internalCmd
}

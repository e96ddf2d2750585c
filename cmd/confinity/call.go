// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

const exitUsage = 2

var errUnknownHandler = errors.New("unknown handler")

func newCallCommand(app *App) *cobra.Command {
	var build buildFlags
	callCmd := &cobra.Command{
		Use:   "call <identifier> <json-payload>",
		Short: "Call a builtin handler once",
		Long: `Commit the builtin handlers and call one of them with a JSON payload.
The result is printed as JSON.`,
		Example: `  confinity call demo.Greeter '{"subject":"rohan"}'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd.Context(), app, cmd.OutOrStdout(), &build, args[0], args[1])
		},
	}
	build.addFlags(callCmd.Flags())
	return callCmd
}

func runCall(ctx context.Context, app *App, out io.Writer, build *buildFlags, identifier, payload string) error {
	rt, b, err := app.runtime(out, build.options(app)...)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

	prepare, ok := b.callers[identifier]
	if !ok {
		return &ExitError{Code: exitUsage, Err: fmt.Errorf("%w %q (available: %s)",
			errUnknownHandler, identifier, strings.Join(b.names(), ", "))}
	}
	call, err := prepare([]byte(payload))
	if err != nil {
		return &ExitError{Code: exitUsage, Err: err}
	}

	if err := rt.Commit(ctx); err != nil {
		renderIssue(app.stderr, err)
		return err
	}
	res, err := call(ctx)
	if err != nil {
		renderIssue(app.stderr, err)
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
)

const logPrefix = "confinity"

// newLogHandler returns the CLI's slog handler. verbose forces debug;
// otherwise level is parsed from configuration and falls back to info.
func newLogHandler(w io.Writer, level string, verbose bool) slog.Handler {
	return log.NewWithOptions(w, log.Options{
		Prefix:          logPrefix,
		Level:           logLevel(level, verbose),
		ReportTimestamp: verbose,
	})
}

func logLevel(level string, verbose bool) log.Level {
	if verbose {
		return log.DebugLevel
	}
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil || level == "" {
		return log.InfoLevel
	}
	return lvl
}

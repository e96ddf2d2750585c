// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/rohanprabhu-jm/confinity/internal/issue"
)

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// renderIssue writes the catalog guide attached to err, if any.
func renderIssue(w io.Writer, err error) {
	iss := issue.IssueOf(err)
	if iss == nil {
		return
	}
	rendered, renderErr := iss.Render("dark")
	if renderErr != nil {
		return
	}
	fmt.Fprint(w, rendered)
}

// SPDX-License-Identifier: MPL-2.0

package confinity_test

import (
	"context"
	"os"
	"testing"

	"github.com/rohanprabhu-jm/confinity/pkg/confinity"
)

// TestMain lets the test binary double as the sandbox dispatcher: the
// integration test bundles it, and the image runs it as
// `<binary> internal dispatch <identifier> <payload>`.
func TestMain(m *testing.M) {
	if len(os.Args) > 2 && os.Args[1] == "internal" && os.Args[2] == "dispatch" {
		os.Exit(sandboxMain(os.Args[3:]))
	}
	os.Exit(m.Run())
}

func sandboxMain(args []string) int {
	rt, err := confinity.New(confinity.WithCleanupInterval(0), confinity.WithLogger(discardLogger()))
	if err != nil {
		return 1
	}
	defer func() { _ = rt.Close(context.Background()) }()

	if _, err := confinity.Register(rt, "demo.Greeter", greet); err != nil {
		return 1
	}
	return rt.Dispatch(context.Background(), args, os.Stdout, os.Stderr)
}

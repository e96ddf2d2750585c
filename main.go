// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/rohanprabhu-jm/confinity/cmd/confinity"

func main() {
	cmd.Execute()
}

// Package main provides govctl, the operator CLI for inspecting governor
// state and dry-running release decisions.
package main

import (
	"fmt"
	"os"

	"github.com/bootyhq/booty/cmd/govctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package main provides the dwhetl command.
package main

import (
	"os"

	"github.com/leapstack-labs/dwhetl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command create-tables drops and recreates every warehouse table.
// It is shorthand for "dwhetl reset" and accepts the same flags.
package main

import (
	"os"

	"github.com/leapstack-labs/dwhetl/internal/cli"
)

func main() {
	if err := cli.ExecuteArgs(append([]string{"reset"}, os.Args[1:]...)); err != nil {
		os.Exit(1)
	}
}

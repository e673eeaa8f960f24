// Command etl stages the source data and builds the star schema.
// It is shorthand for "dwhetl load" and accepts the same flags.
package main

import (
	"os"

	"github.com/leapstack-labs/dwhetl/internal/cli"
)

func main() {
	if err := cli.ExecuteArgs(append([]string{"load"}, os.Args[1:]...)); err != nil {
		os.Exit(1)
	}
}

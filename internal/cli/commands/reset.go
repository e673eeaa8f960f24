package commands

import (
	"github.com/leapstack-labs/dwhetl/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewResetCommand creates the reset command.
func NewResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "reset",
		Aliases: []string{"create-tables"},
		Short:   "Drop and recreate every warehouse table",
		Long: `Drop the staging, fact and dimension tables and create them again.

Each statement commits on its own. Dropping a table that does not exist is
logged and skipped; any other failure stops the reset and leaves the
statements before it applied.`,
		Example: `  # Rebuild the schema on the configured target
  dwhetl reset

  # Use the legacy config file
  dwhetl reset --config dwh.cfg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, pipeline.CommandReset, false)
		},
	}
}

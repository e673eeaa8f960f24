package commands

import (
	"github.com/leapstack-labs/dwhetl/internal/pipeline"
	"github.com/spf13/cobra"
)

// LoadOptions holds options for the load command.
type LoadOptions struct {
	Resume bool
}

// NewLoadCommand creates the load command.
func NewLoadCommand() *cobra.Command {
	opts := &LoadOptions{}

	cmd := &cobra.Command{
		Use:     "load",
		Aliases: []string{"etl"},
		Short:   "Stage the source data and build the star schema",
		Long: `Copy the event logs and the song catalog into the staging tables, then
populate songplays, users, songs, artists and time.

Loading into staging tables that already hold rows appends another copy of
the sources, and the fact insert then re-reads every copy on top of the facts
already present: a second load leaves three times the facts. Run
'dwhetl reset' first or pass --truncate to empty every table before copying.

With --commit-mode sequence, each sequence commits or rolls back as a whole.
Truncates on Redshift are the exception: TRUNCATE commits immediately there.

With --resume, statements that succeeded in the latest failed load are
skipped, unless a reset has run since that load.`,
		Example: `  # Full load after a reset
  dwhetl load

  # Reload without rebuilding the schema
  dwhetl load --truncate

  # Roll back a whole sequence when one statement fails
  dwhetl load --commit-mode sequence

  # Continue a failed load
  dwhetl load --resume`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, pipeline.CommandLoad, opts.Resume)
		},
	}

	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "Skip statements that succeeded in the latest failed load")
	cmd.Flags().Bool("truncate", false, "Empty staging and star tables before copying")
	cmd.Flags().String("commit-mode", "", "Transaction boundary: statement or sequence")

	_ = cmd.RegisterFlagCompletionFunc("commit-mode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(pipeline.CommitStatement), string(pipeline.CommitSequence)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

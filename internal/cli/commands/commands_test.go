package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewResetCommand(), "reset", nil},
		{NewLoadCommand(), "load", []string{"resume", "truncate", "commit-mode"}},
		{NewPlanCommand(), "plan <command|sequence>", []string{"truncate"}},
		{NewLineageCommand(), "lineage [table]", []string{"upstream", "downstream"}},
		{NewRunsCommand(), "runs [run-id]", []string{"limit"}},
		{NewReportCommand(), "report", []string{"strict"}},
		{NewDoctorCommand(), "doctor", nil},
		{NewProvisionCommand(), "provision", nil},
		{NewTeardownCommand(), "teardown", []string{"yes"}},
		{NewInitCommand(), "init [directory]", []string{"force", "target"}},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, tt.cmd.Long, "Long should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestScriptAliases(t *testing.T) {
	assert.Contains(t, NewResetCommand().Aliases, "create-tables")
	assert.Contains(t, NewLoadCommand().Aliases, "etl")
}

func TestPlanTargets(t *testing.T) {
	assert.Equal(t,
		[]string{"reset", "load", "drop", "create", "truncate", "copy", "insert"},
		planTargets())
}

func TestProvisionHasStatusSubcommand(t *testing.T) {
	cmd := NewProvisionCommand()
	sub, _, err := cmd.Find([]string{"status"})
	assert.NoError(t, err)
	assert.Equal(t, "status", sub.Name())
}

// Package main provides tests for the dwhetl CLI.
package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leapstack-labs/dwhetl/internal/cli"
)

func TestVersionCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("version command error = %v", err)
	}

	if output := buf.String(); !strings.Contains(output, "dwhetl v") {
		t.Errorf("version output should contain 'dwhetl v', got: %s", output)
	}
}

func TestHelpListsCommands(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"reset", "load", "provision", "teardown", "report", "doctor"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output should list %q, got: %s", want, output)
		}
	}
}

// Package state records dwhetl runs and their statement steps in SQLite so
// that a failed load can be inspected and resumed.
package state

import (
	"github.com/leapstack-labs/dwhetl/pkg/core"
)

type (
	// Store is an alias for core.Store.
	Store = core.Store

	// Run is an alias for core.Run.
	Run = core.Run

	// RunStatus is an alias for core.RunStatus.
	RunStatus = core.RunStatus

	// StepRun is an alias for core.StepRun.
	StepRun = core.StepRun

	// StepStatus is an alias for core.StepStatus.
	StepStatus = core.StepStatus

	// StepUpdate is an alias for core.StepUpdate.
	StepUpdate = core.StepUpdate
)

// Re-export status constants from core.
const (
	RunStatusRunning   = core.RunStatusRunning
	RunStatusCompleted = core.RunStatusCompleted
	RunStatusFailed    = core.RunStatusFailed

	StepStatusPending    = core.StepStatusPending
	StepStatusRunning    = core.StepStatusRunning
	StepStatusSuccess    = core.StepStatusSuccess
	StepStatusFailed     = core.StepStatusFailed
	StepStatusSkipped    = core.StepStatusSkipped
	StepStatusRolledBack = core.StepStatusRolledBack
)

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

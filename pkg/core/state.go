package core

import "time"

// Store defines the interface for run bookkeeping.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(command string, resumedFrom string) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetLatestRun(command string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	// Step operations
	RecordStep(step *StepRun) error
	UpdateStep(id string, update StepUpdate) error
	GetStepsForRun(runID string) ([]*StepRun, error)
}

// RunStatus represents the status of a command run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents one invocation of a pipeline command (reset or load).
type Run struct {
	ID          string
	Command     string
	Status      RunStatus
	ResumedFrom string
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// StepStatus represents the status of a single statement within a run.
type StepStatus string

// Step status constants.
const (
	StepStatusPending    StepStatus = "pending"
	StepStatusRunning    StepStatus = "running"
	StepStatusSuccess    StepStatus = "success"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
	StepStatusRolledBack StepStatus = "rolled_back"
)

// StepRun records the execution of one catalog statement.
type StepRun struct {
	ID           string
	RunID        string
	Sequence     string
	Statement    string
	Position     int
	Status       StepStatus
	RowsAffected int64
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Error        string
	Note         string
	ExecutionMS  int64
}

// Key identifies a step across runs of the same command.
func (s *StepRun) Key() string {
	return s.Sequence + "/" + s.Statement
}

// StepUpdate carries the mutable fields of a step.
type StepUpdate struct {
	Status       StepStatus
	RowsAffected int64
	Error        string
	Note         string
	ExecutionMS  int64
}

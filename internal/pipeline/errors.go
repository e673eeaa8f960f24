package pipeline

import "fmt"

// StatementError reports the statement that aborted a sequence.
type StatementError struct {
	Sequence  string
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s statement %s failed: %v", e.Sequence, e.Statement, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by orchestrator operations.
var (
	ErrNoExecutable     = errors.New("no executable for task")
	ErrAlreadyScheduled = errors.New("task already scheduled")
	ErrNotStarted       = errors.New("orchestrator not started")
	ErrStopped          = errors.New("orchestrator stopped")
)

// ExecutionError wraps an error returned by a task's executable. The same
// error text is stored on the task entity and carried in the task.failed
// signal.
type ExecutionError struct {
	TaskID string
	Err    error
}

// Error returns the error message with task context.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed [task=%s]: %v", e.TaskID, e.Err)
}

// Unwrap returns the executable's underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// SequenceError reports a fail-fast abort of ExecuteSequential: which tasks
// completed before the failure, which task failed, and which were never
// started and remain pending.
type SequenceError struct {
	Completed []string
	FailedID  string
	Remaining []string
	Err       error
}

// Error returns the error message with sequence context.
func (e *SequenceError) Error() string {
	return fmt.Sprintf("sequence aborted [failed=%s, completed=%d, remaining=%d]: %v",
		e.FailedID, len(e.Completed), len(e.Remaining), e.Err)
}

// Unwrap returns the failing task's ExecutionError.
func (e *SequenceError) Unwrap() error {
	return e.Err
}

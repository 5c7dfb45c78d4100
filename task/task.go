package task

import "time"

// Status represents the current state of a task.
type Status string

const (
	// StatusPending indicates the task is waiting to run.
	StatusPending Status = "pending"

	// StatusRunning indicates the task is actively being executed.
	StatusRunning Status = "running"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the task's executable returned an error.
	StatusFailed Status = "failed"

	// StatusCancelled indicates the task was cancelled before or during
	// execution.
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority orders ready tasks: higher values are scheduled first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// String returns a human-readable name for the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Task is a unit of work with identity, priority, a dependency set, and a
// lifecycle state. Registry methods return copies; the Dependencies slice
// and Metadata map on a copy are shared with the registry and must be
// treated as read-only.
type Task struct {
	// ID uniquely identifies the task for the registry's lifetime.
	ID string

	// Name is a short human-readable label.
	Name string

	// Description optionally elaborates on what the task does.
	Description string

	// Priority orders the task against other ready tasks.
	Priority Priority

	// Status is the current lifecycle state.
	Status Status

	// Dependencies lists task IDs that must complete before this task
	// becomes ready.
	Dependencies []string

	// ParentID optionally groups this task under another task.
	ParentID string

	// AgentID optionally names the agent assigned to this task.
	AgentID string

	// CreatedAt is when the task was registered.
	CreatedAt time.Time

	// StartedAt is when the task transitioned to running.
	StartedAt time.Time

	// CompletedAt is when the task reached a terminal state.
	CompletedAt time.Time

	// Result holds the executable's return value once completed.
	Result any

	// Err holds the failure text once failed.
	Err string

	// Metadata carries caller-defined key/value annotations.
	Metadata map[string]string

	// seq is the creation sequence number, used to break priority ties
	// in FIFO order.
	seq uint64
}

// Duration returns how long the task ran, or 0 if it has not both started
// and reached a terminal state.
func (t Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// TaskSpec describes a task to create.
type TaskSpec struct {
	// ID optionally pins the task ID. When empty a unique ID is generated.
	ID string

	// Name is required.
	Name string

	// Description optionally elaborates on what the task does.
	Description string

	// Priority defaults to PriorityNormal when zero.
	Priority Priority

	// Dependencies lists task IDs that must complete first. Every entry
	// must reference an existing task.
	Dependencies []string

	// ParentID optionally groups this task under another task.
	ParentID string

	// AgentID optionally pre-assigns an agent.
	AgentID string

	// Metadata carries caller-defined key/value annotations.
	Metadata map[string]string
}

package signal

import "time"

// Type identifies a lifecycle signal.
// Convention: "category.action" (e.g., "task.started", "agent.busy").
type Type string

// Task lifecycle signals
const (
	TaskStarted   Type = "task.started"
	TaskCompleted Type = "task.completed"
	TaskFailed    Type = "task.failed"
	TaskCancelled Type = "task.cancelled"
)

// Agent lifecycle signals
const (
	AgentReady Type = "agent.ready"
	AgentBusy  Type = "agent.busy"
	AgentError Type = "agent.error"
)

// String returns the signal type as a string.
func (t Type) String() string { return string(t) }

// Signal is an immutable lifecycle notification broadcast through a [Bus].
// The bus fills ID and Time on emit when they are zero; everything else is
// set by the emitter. Signals are stored and delivered by value, so a
// handler cannot change what later readers of the history see, but Payload
// is shared by reference and must not be mutated after emit.
type Signal struct {
	ID      string         // Unique signal identifier, filled on emit
	Type    Type           // What happened
	TaskID  string         // Task the signal concerns, if any
	AgentID string         // Agent the signal concerns, if any
	Time    time.Time      // When the signal was emitted, filled on emit
	Error   string         // Error text for failure signals
	Payload map[string]any // Signal-specific data
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ensemblekit/ensemble/internal/logging"
	"github.com/ensemblekit/ensemble/signal"
)

// ErrAgentBusy is returned by Execute when the agent is not in a state that
// can take work.
var ErrAgentBusy = errors.New("agent not available")

// State describes where an agent is in its lifecycle.
type State string

const (
	StateIdle    State = "idle"
	StateReady   State = "ready"
	StateBusy    State = "busy"
	StateError   State = "error"
	StateOffline State = "offline"
)

// String returns the state as a string.
func (s State) String() string {
	return string(s)
}

// ExecFunc is the work an agent performs for a task. The context is the one
// passed to Execute; implementations should honor its cancellation.
type ExecFunc func(ctx context.Context) (any, error)

// Info is a point-in-time copy of an agent's metadata.
type Info struct {
	ID             string
	Name           string
	Role           string
	State          State
	CurrentTaskID  string
	TasksCompleted int
	TasksFailed    int
	CreatedAt      time.Time
	LastActive     time.Time
	Capabilities   map[string]string
}

// AgentConfig holds the settings for creating an Agent.
type AgentConfig struct {
	// ID uniquely identifies the agent. Generated when empty.
	ID string

	// Name is the human-readable agent name. Defaults to Role when empty.
	Name string

	// Role describes the kind of work the agent takes. Required.
	Role string

	// Exec is the function the agent runs for each task. Required.
	Exec ExecFunc

	// Capabilities carries free-form descriptive metadata.
	Capabilities map[string]string

	// Bus receives the agent.* lifecycle signals. Required.
	Bus *signal.Bus

	// Logger is optional; a no-op logger is used when nil.
	Logger *logging.Logger
}

// Agent runs task executables and tracks its own availability. Agents start
// idle; a Pool flips them to ready on registration. Execute emits the
// agent.* signal for each transition while holding the agent's mutex, so
// signal handlers must not call methods of the same agent synchronously.
//
// All methods are safe for concurrent use.
type Agent struct {
	id           string
	name         string
	role         string
	exec         ExecFunc
	capabilities map[string]string
	bus          *signal.Bus
	logger       *logging.Logger

	mu             sync.Mutex
	state          State
	currentTaskID  string
	tasksCompleted int
	tasksFailed    int
	createdAt      time.Time
	lastActive     time.Time
}

// New creates an idle agent bound to its executable and bus.
func New(cfg AgentConfig) (*Agent, error) {
	if cfg.Role == "" {
		return nil, errors.New("agent: Role is required")
	}
	if cfg.Exec == nil {
		return nil, errors.New("agent: Exec is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("agent: Bus is required")
	}

	id := cfg.ID
	if id == "" {
		id = "agent-" + uuid.NewString()[:8]
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Role
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Agent{
		id:           id,
		name:         name,
		role:         cfg.Role,
		exec:         cfg.Exec,
		capabilities: maps.Clone(cfg.Capabilities),
		bus:          cfg.Bus,
		logger:       logger.WithComponent("agent").WithAgent(id),
		state:        StateIdle,
		createdAt:    time.Now(),
	}, nil
}

// ID returns the agent's unique identifier.
func (a *Agent) ID() string { return a.id }

// Name returns the agent's display name.
func (a *Agent) Name() string { return a.name }

// Role returns the agent's role.
func (a *Agent) Role() string { return a.role }

// State returns the agent's current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Available reports whether the agent can take a task right now.
func (a *Agent) Available() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == StateIdle || a.state == StateReady
}

// Execute runs the agent's executable for the given task. The agent flips
// to busy and emits agent.busy before running; afterwards it flips to ready
// (emitting agent.ready) on success or to error (emitting agent.error) on
// failure. An agent that is not idle or ready returns ErrAgentBusy. A panic
// in the executable is recovered and reported as a failure.
func (a *Agent) Execute(ctx context.Context, taskID string) (any, error) {
	a.mu.Lock()
	if a.state != StateIdle && a.state != StateReady {
		state := a.state
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: agent %s is %s", ErrAgentBusy, a.id, state)
	}
	a.state = StateBusy
	a.currentTaskID = taskID
	a.lastActive = time.Now()
	a.bus.Emit(signal.Signal{
		Type:    signal.AgentBusy,
		TaskID:  taskID,
		AgentID: a.id,
		Payload: map[string]any{
			"agent_name": a.name,
			"role":       a.role,
		},
	})
	a.mu.Unlock()

	result, err := a.run(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentTaskID = ""
	a.lastActive = time.Now()

	if err != nil {
		a.state = StateError
		a.tasksFailed++
		a.logger.Error("task execution failed", "task_id", taskID, "error", err)
		a.bus.Emit(signal.Signal{
			Type:    signal.AgentError,
			TaskID:  taskID,
			AgentID: a.id,
			Error:   err.Error(),
			Payload: map[string]any{
				"agent_name": a.name,
				"role":       a.role,
			},
		})
		return nil, fmt.Errorf("agent %s: %w", a.id, err)
	}

	a.state = StateReady
	a.tasksCompleted++
	a.bus.Emit(signal.Signal{
		Type:    signal.AgentReady,
		TaskID:  taskID,
		AgentID: a.id,
		Payload: map[string]any{
			"agent_name":      a.name,
			"tasks_completed": a.tasksCompleted,
		},
	})
	return result, nil
}

// run invokes the executable, converting a panic into an error.
func (a *Agent) run(ctx context.Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executable panic: %v", r)
		}
	}()
	return a.exec(ctx)
}

// SetReady marks the agent ready for work, recovering it from the error or
// offline states.
func (a *Agent) SetReady() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateReady
	a.lastActive = time.Now()
}

// SetOffline takes the agent out of rotation.
func (a *Agent) SetOffline() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateOffline
	a.lastActive = time.Now()
}

// Snapshot returns a copy of the agent's metadata.
func (a *Agent) Snapshot() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Info{
		ID:             a.id,
		Name:           a.name,
		Role:           a.role,
		State:          a.state,
		CurrentTaskID:  a.currentTaskID,
		TasksCompleted: a.tasksCompleted,
		TasksFailed:    a.tasksFailed,
		CreatedAt:      a.createdAt,
		LastActive:     a.lastActive,
		Capabilities:   maps.Clone(a.capabilities),
	}
}

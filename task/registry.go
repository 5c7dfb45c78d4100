package task

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ensemblekit/ensemble/internal/logging"
	"github.com/ensemblekit/ensemble/signal"
)

// Sentinel errors returned by registry operations.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidDependency = errors.New("invalid dependency")
	ErrDuplicateTask     = errors.New("duplicate task id")
)

// RegistryConfig holds dependencies for creating a Registry.
type RegistryConfig struct {
	// Bus receives the lifecycle signals the registry emits. Required.
	Bus *signal.Bus

	// Logger is optional; a no-op logger is used when nil.
	Logger *logging.Logger
}

// Registry owns Task entities and drives their lifecycle state machine.
// Every mutation changes state and emits the corresponding signal under one
// internal mutex, so no observer can see a task whose state has changed but
// whose signal is not yet recorded. As a consequence, signal handlers run
// with the registry lock held and must not call registry methods
// synchronously; hand work to another goroutine instead.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	bus        *signal.Bus
	logger     *logging.Logger
	tasks      map[string]*Task
	order      []string            // task IDs in creation order
	children   map[string][]string // parentID -> child IDs in creation order
	dependents map[string][]string // taskID -> IDs of tasks depending on it
	nextSeq    uint64
}

// NewRegistry creates a task registry that emits on the given bus.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Bus == nil {
		return nil, errors.New("task: Bus is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		bus:        cfg.Bus,
		logger:     logger.WithComponent("task"),
		tasks:      make(map[string]*Task),
		children:   make(map[string][]string),
		dependents: make(map[string][]string),
	}, nil
}

// Create registers a new task in the pending state and returns its ID.
// Dependencies must reference existing tasks and must not introduce a
// cycle; violations return ErrInvalidDependency. A pinned ID that already
// exists returns ErrDuplicateTask. Creation emits no signal.
func (r *Registry) Create(spec TaskSpec) (string, error) {
	if spec.Name == "" {
		return "", errors.New("task: Name is required")
	}
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	priority := spec.Priority
	if priority == 0 {
		priority = PriorityNormal
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateTask, id)
	}

	// Validate and deduplicate the dependency set.
	deps := make([]string, 0, len(spec.Dependencies))
	seen := make(map[string]struct{}, len(spec.Dependencies))
	for _, depID := range spec.Dependencies {
		if _, dup := seen[depID]; dup {
			continue
		}
		seen[depID] = struct{}{}
		if depID == id {
			return "", fmt.Errorf("%w: task %s cannot depend on itself", ErrInvalidDependency, id)
		}
		if _, ok := r.tasks[depID]; !ok {
			return "", fmt.Errorf("%w: unknown task %s", ErrInvalidDependency, depID)
		}
		deps = append(deps, depID)
	}
	if r.createsCycle(id, deps) {
		return "", fmt.Errorf("%w: dependency cycle through task %s", ErrInvalidDependency, id)
	}

	r.nextSeq++
	task := &Task{
		ID:           id,
		Name:         spec.Name,
		Description:  spec.Description,
		Priority:     priority,
		Status:       StatusPending,
		Dependencies: deps,
		ParentID:     spec.ParentID,
		AgentID:      spec.AgentID,
		CreatedAt:    time.Now(),
		Metadata:     maps.Clone(spec.Metadata),
		seq:          r.nextSeq,
	}

	r.tasks[id] = task
	r.order = append(r.order, id)
	if spec.ParentID != "" {
		r.children[spec.ParentID] = append(r.children[spec.ParentID], id)
	}
	for _, depID := range deps {
		r.dependents[depID] = append(r.dependents[depID], id)
	}

	r.logger.Debug("task created",
		"task_id", id,
		"name", task.Name,
		"priority", task.Priority.String(),
		"dependencies", len(deps))
	return id, nil
}

// Start transitions a task from pending to running, records StartedAt, and
// emits a task.started signal. A non-empty agentID is recorded on the task.
func (r *Registry) Start(id, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status != StatusPending {
		return fmt.Errorf("%w: cannot start task %s in status %s", ErrInvalidTransition, id, task.Status)
	}

	task.Status = StatusRunning
	task.StartedAt = time.Now()
	if agentID != "" {
		task.AgentID = agentID
	}

	r.logger.Debug("task started", "task_id", id, "agent_id", task.AgentID)
	r.bus.Emit(signal.Signal{
		Type:    signal.TaskStarted,
		TaskID:  id,
		AgentID: task.AgentID,
		Payload: map[string]any{
			"name":     task.Name,
			"priority": task.Priority.String(),
		},
	})
	return nil
}

// Complete transitions a task from running to completed, records the result
// and CompletedAt, and emits a task.completed signal.
func (r *Registry) Complete(id string, result any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status != StatusRunning {
		return fmt.Errorf("%w: cannot complete task %s in status %s", ErrInvalidTransition, id, task.Status)
	}

	task.Status = StatusCompleted
	task.CompletedAt = time.Now()
	task.Result = result

	r.logger.Debug("task completed", "task_id", id, "duration", task.Duration())
	r.bus.Emit(signal.Signal{
		Type:    signal.TaskCompleted,
		TaskID:  id,
		AgentID: task.AgentID,
		Payload: map[string]any{
			"name":             task.Name,
			"duration_seconds": task.Duration().Seconds(),
		},
	})
	return nil
}

// Fail transitions a task from running to failed, records the error text
// and CompletedAt, and emits a task.failed signal carrying the error.
func (r *Registry) Fail(id string, taskErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status != StatusRunning {
		return fmt.Errorf("%w: cannot fail task %s in status %s", ErrInvalidTransition, id, task.Status)
	}

	task.Status = StatusFailed
	task.CompletedAt = time.Now()
	if taskErr != nil {
		task.Err = taskErr.Error()
	}

	r.logger.Debug("task failed", "task_id", id, "error", task.Err)
	r.bus.Emit(signal.Signal{
		Type:    signal.TaskFailed,
		TaskID:  id,
		AgentID: task.AgentID,
		Error:   task.Err,
		Payload: map[string]any{
			"name": task.Name,
		},
	})
	return nil
}

// Cancel marks a task cancelled and cascades to every transitive dependent
// that is not yet terminal, since a dependent of a cancelled task can never
// become ready. Cancelling a running task is a best-effort mark: the
// registry does not interrupt in-flight work. Returns the IDs of all tasks
// cancelled by this call, requested task first, then dependents in
// breadth-first order, each with its own task.cancelled signal.
func (r *Registry) Cancel(id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot cancel task %s in status %s", ErrInvalidTransition, id, task.Status)
	}

	var cancelled []string
	queue := []string{id}
	visited := map[string]struct{}{id: {}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		t := r.tasks[cur]
		if !t.Status.IsTerminal() {
			t.Status = StatusCancelled
			t.CompletedAt = time.Now()
			cancelled = append(cancelled, cur)

			r.logger.Debug("task cancelled", "task_id", cur)
			r.bus.Emit(signal.Signal{
				Type:    signal.TaskCancelled,
				TaskID:  cur,
				AgentID: t.AgentID,
				Payload: map[string]any{
					"name": t.Name,
				},
			})
		}

		for _, depID := range r.dependents[cur] {
			if _, dup := visited[depID]; !dup {
				visited[depID] = struct{}{}
				queue = append(queue, depID)
			}
		}
	}
	return cancelled, nil
}

// Ready returns the pending tasks whose dependencies are all completed,
// ordered by priority descending, ties broken by creation order.
func (r *Registry) Ready() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ready []*Task
	for _, id := range r.order {
		task := r.tasks[id]
		if r.isReady(task) {
			ready = append(ready, task)
		}
	}

	// r.order is creation order, so a stable sort preserves FIFO ties.
	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority > ready[j].Priority
	})

	out := make([]Task, len(ready))
	for i, t := range ready {
		out[i] = *t
	}
	return out
}

// Unblocked returns the pending dependents of the given task that became
// ready once it finished, ordered by priority descending, ties broken by
// creation order. Schedulers reacting to a task.completed signal use this
// instead of rescanning the whole registry.
func (r *Registry) Unblocked(id string) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.unblockedBy(id)
	ready := make([]*Task, 0, len(ids))
	for _, depID := range ids {
		ready = append(ready, r.tasks[depID])
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority > ready[j].Priority
	})

	out := make([]Task, len(ready))
	for i, t := range ready {
		out[i] = *t
	}
	return out
}

// Get returns a copy of the task with the given ID.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return *task, nil
}

// Children returns the tasks whose ParentID equals parentID, in creation
// order.
func (r *Registry) Children(parentID string) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.children[parentID]
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.tasks[id])
	}
	return out
}

// ByStatus returns all tasks currently in the given status, in creation
// order.
func (r *Registry) ByStatus(s Status) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Task
	for _, id := range r.order {
		if task := r.tasks[id]; task.Status == s {
			out = append(out, *task)
		}
	}
	return out
}

// All returns every registered task in creation order.
func (r *Registry) All() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.tasks[id])
	}
	return out
}

// HasOutstanding returns true while any task is pending or running.
func (r *Registry) HasOutstanding() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, task := range r.tasks {
		if task.Status == StatusPending || task.Status == StatusRunning {
			return true
		}
	}
	return false
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Counts returns a snapshot of task counts per status.
func (r *Registry) Counts() map[Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[Status]int, 5)
	for _, task := range r.tasks {
		counts[task.Status]++
	}
	return counts
}

// Clear removes every task from the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks = make(map[string]*Task)
	r.order = nil
	r.children = make(map[string][]string)
	r.dependents = make(map[string][]string)
}

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ensemblekit/ensemble/task"
)

// pollInterval paces RunUntilComplete's scheduling rounds.
const pollInterval = 10 * time.Millisecond

// ExecFunc is a task body. The context is cancelled when the task is
// cancelled while running or when the orchestrator stops; cancellation is
// cooperative and the executable decides when to observe it.
type ExecFunc func(ctx context.Context) (any, error)

// Result is the terminal outcome of one task in a batch execution: the
// executable's return value, or the error that failed it.
type Result struct {
	Value any
	Err   error
}

// Mode selects how ExecuteGroup runs a parent's children.
type Mode string

const (
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
)

// TaskSpec describes a task to create, together with the executable that
// will run it. All fields except Name are optional; a nil Exec creates a
// bookkeeping-only task that execution entry points will reject.
type TaskSpec struct {
	ID           string
	Name         string
	Description  string
	Priority     task.Priority
	Dependencies []string
	ParentID     string
	AgentID      string
	Metadata     map[string]string
	Exec         ExecFunc
}

// CreateTask registers a task with the registry and stores its executable.
// Creation works whether or not the orchestrator is started; only execution
// requires Start.
func (o *Orchestrator) CreateTask(spec TaskSpec) (string, error) {
	id, err := o.registry.Create(task.TaskSpec{
		ID:           spec.ID,
		Name:         spec.Name,
		Description:  spec.Description,
		Priority:     spec.Priority,
		Dependencies: spec.Dependencies,
		ParentID:     spec.ParentID,
		AgentID:      spec.AgentID,
		Metadata:     spec.Metadata,
	})
	if err != nil {
		return "", err
	}

	if spec.Exec != nil {
		o.mu.Lock()
		o.execs[id] = spec.Exec
		o.mu.Unlock()
		o.metrics.TaskSubmitted()
	}
	return id, nil
}

// ExecuteTask runs one task synchronously on the caller's goroutine and
// returns the executable's result. A failure comes back as an
// *ExecutionError wrapping the executable's error; the same cause lands on
// the task entity and in the task.failed signal.
func (o *Orchestrator) ExecuteTask(ctx context.Context, id string) (any, error) {
	if _, _, err := o.intake(); err != nil {
		return nil, err
	}
	if err := o.claimAll([]string{id}); err != nil {
		return nil, err
	}
	defer o.releaseClaim(id)

	res := o.runTask(ctx, id)
	return res.Value, res.Err
}

// ExecuteParallel submits the given tasks to the worker pool and blocks
// until every one of them is terminal, returning each task's outcome by ID.
// All IDs are validated upfront; afterwards, one task's failure never
// affects the others, and the returned error is non-nil only for
// validation, submission, or shutdown problems, never for task failures.
// When the queue is full, submission blocks until a worker frees a slot.
func (o *Orchestrator) ExecuteParallel(ctx context.Context, ids []string) (map[string]Result, error) {
	runCtx, queue, err := o.intake()
	if err != nil {
		return nil, err
	}
	if err := o.claimAll(ids); err != nil {
		return nil, err
	}

	results := make(map[string]Result, len(ids))
	waiters := make(map[string]chan Result, len(ids))
	var callErr error

	for i, id := range ids {
		done := make(chan Result, 1)
		if err := o.enqueue(ctx, runCtx, queue, workItem{id: id, done: done}); err != nil {
			callErr = err
			for _, rest := range ids[i:] {
				o.releaseClaim(rest)
				results[rest] = Result{Err: err}
			}
			break
		}
		waiters[id] = done
	}

	for _, id := range ids {
		done, ok := waiters[id]
		if !ok {
			continue
		}
		select {
		case res := <-done:
			results[id] = res
		case <-runCtx.Done():
			results[id] = Result{Err: ErrStopped}
			if callErr == nil {
				callErr = ErrStopped
			}
		case <-ctx.Done():
			results[id] = Result{Err: ctx.Err()}
			if callErr == nil {
				callErr = ctx.Err()
			}
		}
	}
	return results, callErr
}

// ExecuteSequential runs the given tasks strictly in order on the caller's
// goroutine, stopping at the first failure. The partial result map is
// returned together with a *SequenceError naming the completed, failed, and
// never-started tasks; the never-started ones stay pending.
func (o *Orchestrator) ExecuteSequential(ctx context.Context, ids []string) (map[string]Result, error) {
	if _, _, err := o.intake(); err != nil {
		return nil, err
	}
	if err := o.claimAll(ids); err != nil {
		return nil, err
	}

	results := make(map[string]Result, len(ids))
	var completed []string

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			for _, rest := range ids[i:] {
				o.releaseClaim(rest)
			}
			return results, err
		}

		res := o.runTask(ctx, id)
		o.releaseClaim(id)
		results[id] = res

		if res.Err != nil {
			remaining := append([]string(nil), ids[i+1:]...)
			for _, rest := range remaining {
				o.releaseClaim(rest)
			}
			return results, &SequenceError{
				Completed: completed,
				FailedID:  id,
				Remaining: remaining,
				Err:       res.Err,
			}
		}
		completed = append(completed, id)
	}
	return results, nil
}

// ExecuteGroup runs the children of parentID (in creation order) in the
// given mode.
func (o *Orchestrator) ExecuteGroup(ctx context.Context, parentID string, mode Mode) (map[string]Result, error) {
	children := o.registry.Children(parentID)
	ids := make([]string, 0, len(children))
	for _, child := range children {
		ids = append(ids, child.ID)
	}

	switch mode {
	case ModeParallel:
		return o.ExecuteParallel(ctx, ids)
	case ModeSequential:
		return o.ExecuteSequential(ctx, ids)
	default:
		return nil, fmt.Errorf("orchestrator: unknown execution mode %q", mode)
	}
}

// RunUntilComplete drives the whole task graph: each round submits every
// ready task that carries an executable, then waits for the registry to
// settle. It returns when no task is pending or running, or early with the
// context's error. Tasks without executables are ignored; they may be
// completed externally.
func (o *Orchestrator) RunUntilComplete(ctx context.Context) error {
	runCtx, queue, err := o.intake()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		for _, ready := range o.registry.Ready() {
			if !o.claim(ready.ID) {
				continue
			}
			if err := o.enqueue(ctx, runCtx, queue, workItem{id: ready.ID}); err != nil {
				o.releaseClaim(ready.ID)
				return err
			}
		}

		if !o.registry.HasOutstanding() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-runCtx.Done():
			return ErrStopped
		case <-ticker.C:
		}
	}
}

// TaskStatus returns the current status of a task.
func (o *Orchestrator) TaskStatus(id string) (task.Status, error) {
	t, err := o.registry.Get(id)
	if err != nil {
		return "", err
	}
	return t.Status, nil
}

// Tasks returns every registered task in creation order.
func (o *Orchestrator) Tasks() []task.Task {
	return o.registry.All()
}

// runTask drives one claimed task through its lifecycle on the calling
// goroutine: Start, run the executable, Complete or Fail. The claim itself
// is the caller's to release. A task cancelled at any point comes back as
// an ExecutionError wrapping context.Canceled.
func (o *Orchestrator) runTask(parent context.Context, id string) Result {
	if err := o.registry.Start(id, ""); err != nil {
		if o.isCancelled(id) {
			return Result{Err: &ExecutionError{TaskID: id, Err: context.Canceled}}
		}
		return Result{Err: err}
	}

	taskCtx, cancel := context.WithCancel(parent)
	o.trackRunning(id, cancel)
	o.metrics.IncRunning()

	value, execErr := o.invoke(taskCtx, id)

	o.untrackRunning(id)
	cancel()
	o.metrics.DecRunning()

	if execErr != nil {
		wrapped := &ExecutionError{TaskID: id, Err: execErr}
		if err := o.registry.Fail(id, execErr); err != nil && !o.isCancelled(id) {
			o.logger.Error("recording task failure", "task_id", id, "error", err)
		}
		return Result{Err: wrapped}
	}

	if err := o.registry.Complete(id, value); err != nil {
		if o.isCancelled(id) {
			return Result{Err: &ExecutionError{TaskID: id, Err: context.Canceled}}
		}
		return Result{Err: err}
	}
	return Result{Value: value}
}

// invoke runs the stored executable, converting a panic into an error.
func (o *Orchestrator) invoke(ctx context.Context, id string) (value any, err error) {
	o.mu.Lock()
	fn := o.execs[id]
	o.mu.Unlock()
	if fn == nil {
		return nil, ErrNoExecutable
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executable panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (o *Orchestrator) trackRunning(id string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running[id] = cancel
}

func (o *Orchestrator) untrackRunning(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, id)
}

func (o *Orchestrator) isCancelled(id string) bool {
	t, err := o.registry.Get(id)
	return err == nil && t.Status == task.StatusCancelled
}

package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/ensemblekit/ensemble/internal/logging"
	"github.com/ensemblekit/ensemble/signal"
	"github.com/ensemblekit/ensemble/task"
)

const (
	// DefaultMaxParallelTasks bounds the worker pool when Config leaves it
	// unset.
	DefaultMaxParallelTasks = 4
)

// Config holds dependencies and tuning for creating an Orchestrator.
type Config struct {
	// Bus carries task lifecycle signals. Required.
	Bus *signal.Bus

	// Registry owns the task entities the orchestrator executes. Required.
	Registry *task.Registry

	// MaxParallelTasks bounds the number of task executables running
	// concurrently on the worker pool. Defaults to DefaultMaxParallelTasks.
	MaxParallelTasks int

	// QueueDepth is the capacity of the work queue feeding the pool.
	// Submitting to a full queue blocks. Defaults to 2×MaxParallelTasks.
	QueueDepth int

	// Logger is optional; a no-op logger is used when nil.
	Logger *logging.Logger

	// Metrics is optional; the shared package-level metrics registered with
	// the default Prometheus registry are used when nil.
	Metrics *Metrics
}

// workItem is one claimed task handed to the worker pool. done, when
// non-nil, receives the outcome exactly once; it must be buffered so the
// worker never blocks on an abandoned waiter.
type workItem struct {
	id   string
	done chan<- Result
}

// Orchestrator schedules task executables onto a bounded worker pool,
// resolves dependency chains reactively as completion signals arrive, and
// exposes synchronous, parallel, and sequential execution modes.
//
// All methods are safe for concurrent use.
type Orchestrator struct {
	bus         *signal.Bus
	registry    *task.Registry
	logger      *logging.Logger
	metrics     *Metrics
	maxParallel int
	queueDepth  int

	mu        sync.Mutex
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
	queue     chan workItem
	resolveCh chan struct{}
	execs     map[string]ExecFunc
	claims    map[string]struct{}
	running   map[string]context.CancelFunc
	pending   []string // finished task IDs awaiting dependency resolution
	subIDs    []string
	wg        sync.WaitGroup
}

// New creates an orchestrator. Call Start before any Execute method.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Bus == nil {
		return nil, errors.New("orchestrator: Bus is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("orchestrator: Registry is required")
	}

	maxParallel := cfg.MaxParallelTasks
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallelTasks
	}
	queueDepth := cfg.QueueDepth
	if queueDepth <= 0 {
		queueDepth = 2 * maxParallel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = defaultMetrics()
	}

	return &Orchestrator{
		bus:         cfg.Bus,
		registry:    cfg.Registry,
		logger:      logger.WithComponent("orchestrator"),
		metrics:     metrics,
		maxParallel: maxParallel,
		queueDepth:  queueDepth,
		execs:       make(map[string]ExecFunc),
		claims:      make(map[string]struct{}),
		running:     make(map[string]context.CancelFunc),
	}, nil
}

// Start launches the worker pool and the dependency resolver, and subscribes
// to task lifecycle signals. The given context bounds everything the
// orchestrator runs: cancelling it has the same effect as Stop, except that
// Stop additionally waits for the workers to wind down.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return errors.New("orchestrator: already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.ctx = runCtx
	o.cancel = cancel
	o.queue = make(chan workItem, o.queueDepth)
	o.resolveCh = make(chan struct{}, 1)
	o.claims = make(map[string]struct{})
	o.running = make(map[string]context.CancelFunc)
	o.pending = nil

	o.subIDs = []string{
		o.bus.Subscribe("orchestrator.completion", []signal.Type{signal.TaskCompleted}, o.handleCompletion),
		o.bus.Subscribe("orchestrator.failure", []signal.Type{signal.TaskFailed}, o.handleFailure),
		o.bus.Subscribe("orchestrator.cancellation", []signal.Type{signal.TaskCancelled}, o.handleCancellation),
	}

	for i := 0; i < o.maxParallel; i++ {
		o.wg.Add(1)
		go o.worker(runCtx, o.queue)
	}
	o.wg.Add(1)
	go o.resolver(runCtx, o.queue, o.resolveCh)

	o.started = true
	o.logger.Info("orchestrator started",
		"max_parallel_tasks", o.maxParallel,
		"queue_depth", o.queueDepth)
	return nil
}

// Stop unsubscribes from the bus, stops intake, cancels the context of every
// running task, and waits for the workers and resolver to exit. Queued tasks
// that never reached a worker report ErrStopped to their waiters. Stop is
// idempotent, and the orchestrator may be started again afterwards.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	subIDs := o.subIDs
	o.subIDs = nil
	cancel := o.cancel
	cancels := make([]context.CancelFunc, 0, len(o.running))
	for _, c := range o.running {
		cancels = append(cancels, c)
	}
	o.mu.Unlock()

	for _, id := range subIDs {
		o.bus.Unsubscribe(id)
	}
	cancel()
	for _, c := range cancels {
		c()
	}
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// Running reports whether the orchestrator has been started and not yet
// stopped.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

// intake returns the run context and work queue, or ErrNotStarted. Capturing
// both under the lock keeps submissions coherent across a Stop/Start cycle.
func (o *Orchestrator) intake() (context.Context, chan workItem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return nil, nil, ErrNotStarted
	}
	return o.ctx, o.queue, nil
}

// enqueue submits one claimed work item, blocking while the queue is full.
// Returns ErrStopped when the orchestrator shuts down first, or the caller
// context's error when it is done first.
func (o *Orchestrator) enqueue(ctx, runCtx context.Context, queue chan workItem, item workItem) error {
	select {
	case queue <- item:
		o.metrics.SetQueueDepth(len(queue))
		return nil
	case <-runCtx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker consumes the queue until shutdown, then drains whatever is still
// queued so no waiter is left blocked.
func (o *Orchestrator) worker(ctx context.Context, queue chan workItem) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case item := <-queue:
					o.abortQueued(item)
				default:
					return
				}
			}
		case item := <-queue:
			o.metrics.SetQueueDepth(len(queue))
			res := o.runTask(ctx, item.id)
			o.releaseClaim(item.id)
			if item.done != nil {
				item.done <- res
			}
		}
	}
}

// abortQueued reports shutdown to a queued item that never reached a worker.
func (o *Orchestrator) abortQueued(item workItem) {
	o.releaseClaim(item.id)
	if item.done != nil {
		item.done <- Result{Err: ErrStopped}
	}
}

// resolver reacts to completion signals: it asks the registry which tasks
// each finished ID unblocked and submits the ones that carry an executable
// and are not already claimed. Completion handlers only queue IDs here, so
// the registry lock is never held while the resolver calls back into it.
func (o *Orchestrator) resolver(ctx context.Context, queue chan workItem, kick <-chan struct{}) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-kick:
			for _, id := range o.takePending() {
				for _, unblocked := range o.registry.Unblocked(id) {
					if !o.claim(unblocked.ID) {
						continue
					}
					o.logger.Debug("dependency resolved", "task_id", unblocked.ID, "unblocked_by", id)
					select {
					case queue <- workItem{id: unblocked.ID}:
						o.metrics.SetQueueDepth(len(queue))
					case <-ctx.Done():
						o.releaseClaim(unblocked.ID)
						return
					}
				}
			}
		}
	}
}

// takePending swaps out the list of finished task IDs queued for resolution.
func (o *Orchestrator) takePending() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	pending := o.pending
	o.pending = nil
	return pending
}

// claim reserves a task for execution. Returns false when the task has no
// executable or is already claimed.
func (o *Orchestrator) claim(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.execs[id] == nil {
		return false
	}
	if _, claimed := o.claims[id]; claimed {
		return false
	}
	o.claims[id] = struct{}{}
	return true
}

// claimAll reserves every listed task or none of them. The IDs must exist in
// the registry, carry executables, and be unclaimed; a duplicate ID in the
// slice fails the same way a concurrent claim would.
func (o *Orchestrator) claimAll(ids []string) error {
	for _, id := range ids {
		if _, err := o.registry.Get(id); err != nil {
			return err
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for i, id := range ids {
		if o.execs[id] == nil {
			o.unclaimLocked(ids[:i])
			return &ExecutionError{TaskID: id, Err: ErrNoExecutable}
		}
		if _, claimed := o.claims[id]; claimed {
			o.unclaimLocked(ids[:i])
			return &ExecutionError{TaskID: id, Err: ErrAlreadyScheduled}
		}
		o.claims[id] = struct{}{}
	}
	return nil
}

func (o *Orchestrator) unclaimLocked(ids []string) {
	for _, id := range ids {
		delete(o.claims, id)
	}
}

func (o *Orchestrator) releaseClaim(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.claims, id)
}

// handleCompletion queues the finished task for dependency resolution. It
// runs inside the registry's emit path, so it must never call the registry;
// it only records the ID and kicks the resolver goroutine.
func (o *Orchestrator) handleCompletion(sig signal.Signal) {
	o.mu.Lock()
	o.pending = append(o.pending, sig.TaskID)
	kick := o.resolveCh
	o.mu.Unlock()

	if kick != nil {
		select {
		case kick <- struct{}{}:
		default:
		}
	}

	if seconds, ok := sig.Payload["duration_seconds"].(float64); ok {
		o.metrics.ObserveTaskDuration(seconds)
	}
	o.metrics.TaskCompleted()
}

// handleFailure logs the failure. Failed dependencies do not cascade:
// dependents simply never become ready.
func (o *Orchestrator) handleFailure(sig signal.Signal) {
	o.logger.Warn("task failed", "task_id", sig.TaskID, "error", sig.Error)
	o.metrics.TaskFailed()
}

// handleCancellation cancels the context of the named task if its
// executable is currently running; the executable decides when to observe
// it.
func (o *Orchestrator) handleCancellation(sig signal.Signal) {
	o.mu.Lock()
	cancel, ok := o.running[sig.TaskID]
	o.mu.Unlock()

	if ok {
		cancel()
		o.logger.Debug("cancelled running task context", "task_id", sig.TaskID)
	}
	o.metrics.TaskCancelled()
}

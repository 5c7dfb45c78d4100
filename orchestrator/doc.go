// Package orchestrator schedules task executables onto a bounded worker
// pool and resolves dependency chains reactively as completion signals
// arrive.
//
// # Main Types
//
//   - [Orchestrator]: the scheduler; owns the worker pool, the work queue,
//     and the executable store
//   - [ExecFunc]: a task body, invoked with a cancellable context
//   - [Result]: one task's terminal outcome in a batch execution
//   - [ExecutionError], [SequenceError]: failure wrappers
//   - [Metrics]: Prometheus collectors for orchestrator activity
//
// # Execution Modes
//
// ExecuteTask runs one task synchronously on the caller's goroutine.
// ExecuteParallel submits a batch to the worker pool and blocks until every
// task is terminal; failures are isolated per task. ExecuteSequential runs
// tasks in order and stops at the first failure. ExecuteGroup applies
// either mode to a parent's children. RunUntilComplete drives the whole
// graph until nothing is pending or running.
//
// Submitting to a full queue blocks the submitter until a worker frees a
// slot; nothing is ever rejected for load. This is the system's sole
// backpressure mechanism.
//
// # Dependency Resolution
//
// The orchestrator subscribes to task.completed. Each completion queues the
// finished ID for the resolver goroutine, which asks the registry what that
// task unblocked and submits every newly-ready task that carries an
// executable. Submitting only the leaves of a graph therefore runs the
// entire chain. Failed dependencies do not cascade; dependents of a failed
// task simply never become ready.
//
// # Cancellation
//
// Cancellation is cooperative. Cancelling a pending task is immediate;
// cancelling a running task cancels the context its executable received and
// the executable decides when to observe it. There is no built-in timeout:
// wrap an ExecFunc with context.WithTimeout for bounded execution.
//
// # Basic Usage
//
//	orch, err := orchestrator.New(orchestrator.Config{Bus: bus, Registry: reg})
//	if err != nil {
//	    return err
//	}
//	if err := orch.Start(ctx); err != nil {
//	    return err
//	}
//	defer orch.Stop()
//
//	fetch, _ := orch.CreateTask(orchestrator.TaskSpec{
//	    Name: "fetch",
//	    Exec: func(ctx context.Context) (any, error) { return download(ctx, url) },
//	})
//	parse, _ := orch.CreateTask(orchestrator.TaskSpec{
//	    Name:         "parse",
//	    Dependencies: []string{fetch},
//	    Exec:         func(ctx context.Context) (any, error) { return parseBody(ctx) },
//	})
//
//	results, err := orch.ExecuteParallel(ctx, []string{fetch})
//	// "parse" runs automatically once "fetch" completes.
//	_, _ = results, parse
package orchestrator

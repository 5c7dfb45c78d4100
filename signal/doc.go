// Package signal provides a pub-sub bus for task and agent lifecycle
// notifications in ensemble.
//
// This package enables loose coupling between the task registry, the
// orchestrator, and agents: components emit signals without knowing who
// will receive them, and subscribe without knowing who produces them. The
// bus additionally retains a bounded history of emitted signals for
// inspection and tests.
//
// # Main Types
//
//   - [Signal]: An immutable lifecycle notification with type, task/agent
//     IDs, timestamp, and an opaque payload
//   - [Type]: String identifier for what happened ("task.completed", ...)
//   - [Bus]: Synchronous pub-sub dispatcher with bounded history
//   - [Handler]: Function type for signal handlers (func(Signal))
//   - [Filter]: History query by type, task ID, and limit
//
// # Signal Types
//
// Task lifecycle:
//   - [TaskStarted]: A task transitioned Pending to Running
//   - [TaskCompleted]: A task finished successfully
//   - [TaskFailed]: A task's executable returned an error
//   - [TaskCancelled]: A task was cancelled
//
// Agent lifecycle:
//   - [AgentBusy]: An agent began executing a task
//   - [AgentReady]: An agent finished and is available again
//   - [AgentError]: An agent's executable failed
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Multiple goroutines can emit
// and subscribe concurrently. Handlers are called synchronously on the
// emitting goroutine and are protected against panics: a panicking handler
// is logged and never prevents delivery to other handlers.
//
// # Basic Usage
//
//	bus := signal.New(signal.WithHistoryCapacity(500))
//
//	// Subscribe to specific signal types
//	id := bus.Subscribe("progress-printer",
//	    []signal.Type{signal.TaskCompleted, signal.TaskFailed},
//	    func(sig signal.Signal) {
//	        log.Printf("%s: task %s", sig.Type, sig.TaskID)
//	    })
//
//	// Restrict a subscription to one task
//	bus.Subscribe("watcher", []signal.Type{signal.TaskCompleted}, handler,
//	    signal.WithTaskFilter(taskID))
//
//	// Emit signals
//	bus.Emit(signal.Signal{Type: signal.TaskCompleted, TaskID: taskID})
//
//	// Inspect history (oldest first)
//	done := bus.History(signal.Filter{Type: signal.TaskCompleted})
//
//	// Unsubscribe when done
//	bus.Unsubscribe(id)
//
// # Default Bus
//
// [Default] returns a lazily created process-wide bus for top-level
// convenience wiring; [ResetDefault] replaces it in tests. Library
// components never use the default bus internally; every constructor
// takes the bus it should emit on.
package signal

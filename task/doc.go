// Package task provides the task registry: creation, dependency tracking,
// and the lifecycle state machine for units of work.
//
// # Main Types
//
//   - [Task]: a unit of work with priority, dependencies, and lifecycle
//     timestamps
//   - [TaskSpec]: the caller-supplied description a task is created from
//   - [Registry]: owns all tasks and drives status transitions
//   - [Status]: pending, running, completed, failed, or cancelled
//   - [Priority]: low, normal, high, or critical
//
// # Lifecycle
//
// Tasks are created pending and move through a fixed state machine:
//
//	pending -> running -> completed | failed
//	pending | running -> cancelled
//
// Completed, failed, and cancelled are terminal. Any other transition
// returns [ErrInvalidTransition]. Cancelling a task cascades to every
// transitive dependent that is not yet terminal.
//
// # Signals
//
// Start, Complete, Fail, and Cancel emit the matching task.* signal on the
// registry's bus while still holding the registry lock, so observers never
// see a task whose status and signal history disagree. The flip side is
// that signal handlers must not call registry methods synchronously; hand
// work to another goroutine instead. Create emits nothing.
//
// # Basic Usage
//
//	reg, err := task.NewRegistry(task.RegistryConfig{Bus: bus})
//	if err != nil {
//	    return err
//	}
//
//	fetchID, _ := reg.Create(task.TaskSpec{Name: "fetch", Priority: task.PriorityHigh})
//	parseID, _ := reg.Create(task.TaskSpec{Name: "parse", Dependencies: []string{fetchID}})
//
//	for _, t := range reg.Ready() {
//	    // only "fetch" is ready; "parse" waits for it to complete
//	}
//
//	reg.Start(fetchID, "agent-1")
//	reg.Complete(fetchID, result)
//	reg.Unblocked(fetchID) // now returns "parse"
//	_ = parseID
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Query methods return
// copies; mutating a returned Task does not affect the registry.
package task

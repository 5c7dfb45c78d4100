// Package agent provides task-executing workers and the pool that manages
// them.
//
// # Main Types
//
//   - [Agent]: a worker bound to an executable, tracking its own lifecycle
//     state and task counters
//   - [Pool]: registration, availability lookup, and dispatch across agents
//   - [Persona]: a named agent template (role, goal, backstory)
//   - [ExecFunc]: the work function an agent runs for each task
//
// # Lifecycle
//
// Agents are created idle and flip to ready when added to a pool. Execute
// moves an idle or ready agent to busy for the duration of the work, then
// back to ready on success or to error on failure. Removal from a pool
// takes an agent offline; SetReady recovers an agent from the error or
// offline states.
//
//	idle -> ready -> busy -> ready
//	                 busy -> error   (executable failure)
//	         any state -> offline    (removal)
//
// Each transition made by Execute emits the matching agent.* signal on the
// agent's bus with the agent's mutex held; signal handlers must not call
// methods of the same agent synchronously.
//
// # Basic Usage
//
//	worker, err := agent.New(agent.AgentConfig{
//	    Role: "researcher",
//	    Exec: func(ctx context.Context) (any, error) {
//	        return lookup(ctx, query)
//	    },
//	    Bus: bus,
//	})
//	if err != nil {
//	    return err
//	}
//
//	pool := agent.NewPool(agent.PoolConfig{})
//	pool.Add(worker)
//
//	if a, ok := pool.ByRole("researcher"); ok {
//	    result, err := a.Execute(ctx, taskID)
//	    ...
//	}
//
// # Thread Safety
//
// All Agent and Pool methods are safe for concurrent use. An agent's state
// lives under its own mutex; the pool's mutex guards only membership.
package agent

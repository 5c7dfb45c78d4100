package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ensemblekit/ensemble/internal/logging"
)

// ErrAgentNotFound is returned by Dispatch for an agent ID that is not
// registered in the pool.
var ErrAgentNotFound = errors.New("agent not found")

// PoolConfig holds the settings for creating a Pool.
type PoolConfig struct {
	// Logger is optional; a no-op logger is used when nil.
	Logger *logging.Logger
}

// PoolStats summarizes the pool at a point in time.
type PoolStats struct {
	TotalAgents     int
	AvailableAgents int
	BusyAgents      int
	OfflineAgents   int
	TasksCompleted  int
	TasksFailed     int
	ByRole          map[string]int
}

// Pool manages a set of agents: registration, availability lookup, and
// dispatch. Agents keep their own state under their own mutex; the pool's
// mutex guards only membership.
//
// All methods are safe for concurrent use.
type Pool struct {
	mu     sync.Mutex
	logger *logging.Logger
	agents map[string]*Agent
	order  []string // agent IDs in registration order
}

// NewPool creates an empty agent pool.
func NewPool(cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pool{
		logger: logger.WithComponent("pool"),
		agents: make(map[string]*Agent),
	}
}

// Add registers an agent and marks it ready; an agent joining the pool is
// there to take work. Adding an agent whose ID is already registered
// replaces the previous one in place.
func (p *Pool) Add(a *Agent) {
	p.mu.Lock()
	if _, exists := p.agents[a.ID()]; !exists {
		p.order = append(p.order, a.ID())
	}
	p.agents[a.ID()] = a
	p.mu.Unlock()

	a.SetReady()
	p.logger.Info("agent added to pool", "agent_id", a.ID(), "name", a.Name(), "role", a.Role())
}

// Remove unregisters an agent and marks it offline. Returns false when no
// agent with the given ID is registered.
func (p *Pool) Remove(id string) bool {
	p.mu.Lock()
	a, ok := p.agents[id]
	if ok {
		delete(p.agents, id)
		for i, existing := range p.order {
			if existing == id {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	a.SetOffline()
	p.logger.Info("agent removed from pool", "agent_id", id)
	return true
}

// Get returns the registered agent with the given ID.
func (p *Pool) Get(id string) (*Agent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	return a, ok
}

// Agents returns all registered agents in registration order.
func (p *Pool) Agents() []*Agent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*Agent, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.agents[id])
	}
	return out
}

// Available returns the agents that can take work right now, in
// registration order, filtered to the given role when role is non-empty.
func (p *Pool) Available(role string) []*Agent {
	var out []*Agent
	for _, a := range p.Agents() {
		if !a.Available() {
			continue
		}
		if role != "" && a.Role() != role {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ByRole returns the first available agent with the given role.
func (p *Pool) ByRole(role string) (*Agent, bool) {
	available := p.Available(role)
	if len(available) == 0 {
		return nil, false
	}
	return available[0], true
}

// Dispatch runs a task on a specific registered agent. Returns
// ErrAgentNotFound when the ID is not in the pool; busy agents reject work
// with ErrAgentBusy as usual.
func (p *Pool) Dispatch(ctx context.Context, agentID, taskID string) (any, error) {
	p.mu.Lock()
	a, ok := p.agents[agentID]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return a.Execute(ctx, taskID)
}

// Stats returns a snapshot of pool-wide counters.
func (p *Pool) Stats() PoolStats {
	stats := PoolStats{ByRole: make(map[string]int)}
	for _, a := range p.Agents() {
		info := a.Snapshot()
		stats.TotalAgents++
		stats.ByRole[info.Role]++
		stats.TasksCompleted += info.TasksCompleted
		stats.TasksFailed += info.TasksFailed
		switch info.State {
		case StateBusy:
			stats.BusyAgents++
		case StateOffline:
			stats.OfflineAgents++
		case StateIdle, StateReady:
			stats.AvailableAgents++
		}
	}
	return stats
}

package agent

import (
	"errors"
	"fmt"

	"github.com/ensemblekit/ensemble/signal"
)

// ErrPersonaNotFound is returned by NewFromPersona for an unknown persona
// name.
var ErrPersonaNotFound = errors.New("persona not found")

// Persona is a named agent template: a role plus the descriptive metadata
// that shapes how the agent approaches its work. Persona maps are loaded by
// the caller; the mapstructure tags let loaders unmarshal them directly.
type Persona struct {
	Role         string `mapstructure:"role"`
	Goal         string `mapstructure:"goal"`
	Backstory    string `mapstructure:"backstory"`
	PreseedQuery string `mapstructure:"preseed_query"`
}

// NewFromPersona creates an agent from a persona definition. The persona's
// role becomes the agent's name and role (falling back to the persona name
// when the role is empty), and the remaining fields land in Capabilities.
func NewFromPersona(name string, fn ExecFunc, personas map[string]Persona, bus *signal.Bus) (*Agent, error) {
	persona, ok := personas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, name)
	}

	role := persona.Role
	if role == "" {
		role = name
	}

	return New(AgentConfig{
		ID:   "agent-" + name,
		Name: role,
		Role: role,
		Exec: fn,
		Capabilities: map[string]string{
			"goal":          persona.Goal,
			"backstory":     persona.Backstory,
			"preseed_query": persona.PreseedQuery,
		},
		Bus: bus,
	})
}

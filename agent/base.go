package agent

import (
	"fmt"

	"github.com/hupe1980/finmesh/core"
)

// BaseAgent bundles the identity surface shared by every agent variant.
// Embed it in concrete implementations and supply a Run method to satisfy
// the core.Agent interface.
type BaseAgent struct {
	name        string
	description string
	agentType   string
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name, agentType string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
		agentType:   agentType,
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// Info returns the identifying details used in events and child contexts.
func (b *BaseAgent) Info() core.AgentInfo {
	return core.AgentInfo{Name: b.name, Type: b.agentType}
}

// Child pairs a child agent with the scoping the owning combinator applies
// to it: the namespace its writes land under and any shared append-only
// keys it may contribute to.
type Child struct {
	Agent      core.Agent
	Namespace  string
	SharedKeys []string
}

func agentInfo(a core.Agent) core.AgentInfo {
	type infoer interface{ Info() core.AgentInfo }
	if i, ok := a.(infoer); ok {
		return i.Info()
	}
	return core.AgentInfo{Name: a.Name(), Type: "leaf"}
}

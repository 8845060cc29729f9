package agent

import (
	"fmt"

	"github.com/hupe1980/finmesh/core"
)

// Handler is the work function of a LeafAgent. It reads state and calls
// tools through the invocation context, stages writes on it, and may return
// a terminal output for the pipeline's user-facing result. A non-nil error
// marks the agent run as failed; the owning combinator decides whether the
// failure degrades or aborts.
type Handler func(inv *core.InvocationContext) (*core.TerminalOutput, error)

// LeafAgent is the atomic worker of the composition model: a named handler
// with no children. Everything a leaf does goes through its invocation
// context, so its writes stay namespaced and its tool calls audited.
type LeafAgent struct {
	BaseAgent
	handler Handler
}

// NewLeafAgent creates a leaf agent around a handler function.
func NewLeafAgent(name, description string, handler Handler) *LeafAgent {
	a := &LeafAgent{
		BaseAgent: NewBaseAgent(name, "leaf"),
		handler:   handler,
	}
	a.SetDescription(description)
	return a
}

// Run implements core.Agent. The handler's staged writes and tool calls are
// folded into the single returned event; nothing is merged into the session
// here, that is the caller's job.
func (a *LeafAgent) Run(inv *core.InvocationContext) (*core.Event, error) {
	if a.handler == nil {
		return nil, fmt.Errorf("agent %s has no handler", a.Name())
	}
	if err := inv.Err(); err != nil {
		return nil, err
	}

	out, err := a.handler(inv)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	ev := inv.BuildEvent()
	ev.Output = out
	return &ev, nil
}

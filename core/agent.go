package core

// Agent is the atomic unit of the composition model: a capability that
// consumes an invocation context (state view + transcript access) and
// produces a single Event. Composite agents (sequential, parallel, loop)
// implement the same interface, so a pipeline is just an Agent tree built
// once at startup and shared read-only across invocations.
//
// Implementations must:
//   - Respect context cancellation on every blocking operation
//   - Route all tool calls through the invocation's ToolInvoker
//   - Stage state writes on the invocation context, never mutate shared
//     memory directly
type Agent interface {
	Name() string
	Description() string
	Run(inv *InvocationContext) (*Event, error)
}

// AgentInfo carries identifying details about an agent used in contexts and
// events. Name is the external identifier; Type categorizes the variant
// ("leaf", "sequential", "parallel", "loop").
type AgentInfo struct{ Name, Type string }

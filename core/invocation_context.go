package core

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/finmesh/logging"
)

// InvocationContext is the per-execution scope handed to an Agent's Run
// method. It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (SessionID, RunID, Agent info) and the seeding query
//   - The live Session (engine owned) plus an optional frozen snapshot
//   - A namespace that scopes the agent's writes, and the declared shared
//     keys exempt from scoping
//   - The tool gateway handle and logger
//
// State mutations staged via SetState/AppendShared accumulate until
// BuildEvent folds them into an Event; the combinator that owns the agent
// decides when that event is merged into the session. Reads consult the
// staged delta first, then the frozen snapshot (inside a Parallel fan-out),
// then the live session.
type InvocationContext struct {
	Context   context.Context
	SessionID string
	RunID     string
	Agent     AgentInfo
	Query     string
	Session   *Session
	Tools     ToolInvoker
	Logger    logging.Logger
	Branch    string
	Namespace string

	parent     *InvocationContext
	sharedKeys map[string]struct{}
	snapshot   State
	stateDelta map[string]any
	appends    map[string][]any
	toolCalls  []ToolCall
}

// NewInvocationContext constructs a root invocation context with empty
// staging buffers.
func NewInvocationContext(
	ctx context.Context,
	sessionID, runID string,
	agent AgentInfo,
	query string,
	sess *Session,
	tools ToolInvoker,
	logger logging.Logger,
) *InvocationContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &InvocationContext{
		Context:    ctx,
		SessionID:  sessionID,
		RunID:      runID,
		Agent:      agent,
		Query:      query,
		Session:    sess,
		Tools:      tools,
		Logger:     logger,
		stateDelta: map[string]any{},
		appends:    map[string][]any{},
	}
}

// Done mirrors context.Context's Done.
func (ic *InvocationContext) Done() <-chan struct{} { return ic.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (ic *InvocationContext) Err() error { return ic.Context.Err() }

// GetState returns the visible value for key: staged delta first, then the
// frozen snapshot when present, then the live session.
func (ic *InvocationContext) GetState(key string) (any, bool) {
	if v, ok := ic.stateDelta[key]; ok {
		return v, true
	}
	if ic.parent != nil {
		if v, ok := ic.parent.lookupStaged(key); ok {
			return v, true
		}
	}
	if ic.snapshot != nil {
		if v, ok := ic.snapshot.Get(key); ok {
			return v, true
		}
		return nil, false
	}
	if ic.Session != nil {
		return ic.Session.Get(key)
	}
	return nil, false
}

// lookupStaged walks the parent chain for staged-but-unapplied writes, so a
// sequence running inside an isolated fan-out still exposes earlier children's
// merged state to later children.
func (ic *InvocationContext) lookupStaged(key string) (any, bool) {
	if v, ok := ic.stateDelta[key]; ok {
		return v, true
	}
	if ic.parent != nil {
		return ic.parent.lookupStaged(key)
	}
	return nil, false
}

// GetString is a convenience accessor returning "" when absent.
func (ic *InvocationContext) GetString(key string) string {
	if v, ok := ic.GetState(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// View returns the state the agent can observe: the frozen snapshot inside a
// fan-out (overlaid with any staged writes along the parent chain), otherwise
// a fresh snapshot of the live session.
func (ic *InvocationContext) View() State {
	var base State
	switch {
	case ic.snapshot != nil:
		base = make(State, len(ic.snapshot))
		for k, v := range ic.snapshot {
			base[k] = v
		}
	case ic.Session != nil:
		base = ic.Session.Snapshot()
	default:
		base = State{}
	}
	for _, scope := range ic.chain() {
		for k, v := range scope.stateDelta {
			base[k] = v
		}
	}
	return base
}

// chain returns the context lineage root first, self last.
func (ic *InvocationContext) chain() []*InvocationContext {
	var out []*InvocationContext
	for c := ic; c != nil; c = c.parent {
		out = append([]*InvocationContext{c}, out...)
	}
	return out
}

// SetState stages a write under this context's namespace. Writes to declared
// shared keys must use AppendShared instead; SetState rejects them to keep
// concurrent branches from overwriting each other.
func (ic *InvocationContext) SetState(key string, value any) error {
	if _, shared := ic.sharedKeys[key]; shared {
		return fmt.Errorf("key %q is declared shared; use AppendShared", key)
	}
	ic.stateDelta[NamespaceKey(ic.Namespace, key)] = value
	return nil
}

// AppendShared stages an append to a declared shared list key. The key is
// written unscoped so all branches aggregate into one list.
func (ic *InvocationContext) AppendShared(key string, value any) error {
	if _, shared := ic.sharedKeys[key]; !shared {
		return fmt.Errorf("key %q is not declared shared for this branch", key)
	}
	ic.appends[key] = append(ic.appends[key], value)
	return nil
}

// CallTool invokes a registered tool through the gateway, derives the
// request deadline from the ambient context, and records the call so it is
// folded into the next built event. It never returns an error: failures are
// encoded in the result.
func (ic *InvocationContext) CallTool(name string, args map[string]any) ToolResult {
	req := ToolRequest{Tool: name, Args: args}
	if deadline, ok := ic.Context.Deadline(); ok {
		req.Deadline = deadline
	}
	if ic.Tools == nil {
		res := ToolResult{Status: ToolStatusFailure, ErrorCode: CodeToolNotFound, ErrorDetail: "no tool gateway configured"}
		ic.toolCalls = append(ic.toolCalls, ToolCall{ID: NewID(), Request: req, Result: res})
		return res
	}
	res := ic.Tools.Invoke(ic.Context, req)
	ic.toolCalls = append(ic.toolCalls, ToolCall{ID: NewID(), Request: req, Result: res})
	return res
}

// BuildEvent folds the staged state delta, shared appends and tool calls
// into a new Event authored by this context's agent, then resets the
// staging buffers.
func (ic *InvocationContext) BuildEvent() Event {
	ev := NewEvent(ic.RunID, ic.Agent.Name)
	ev.Branch = ic.Branch
	if len(ic.stateDelta) > 0 {
		ev.StateDelta = ic.stateDelta
	}
	if len(ic.appends) > 0 {
		ev.Appends = ic.appends
	}
	if len(ic.toolCalls) > 0 {
		ev.ToolCalls = ic.toolCalls
	}
	ic.stateDelta = map[string]any{}
	ic.appends = map[string][]any{}
	ic.toolCalls = nil
	return ev
}

// Merge incorporates a completed child event. On a live context the event is
// applied to the session immediately (state plus transcript, one critical
// section). Behind a snapshot the state folds into this context's own staging
// buffers instead, so it surfaces in the event returned upward and is applied
// exactly once by whichever ancestor owns the live session; the transcript
// entry is still recorded right away.
func (ic *InvocationContext) Merge(ev Event) {
	if ic.snapshot == nil {
		if ic.Session != nil {
			ic.Session.ApplyEvent(ev)
		}
		return
	}
	for k, v := range ev.StateDelta {
		ic.stateDelta[k] = v
	}
	for k, vs := range ev.Appends {
		ic.appends[k] = append(ic.appends[k], vs...)
	}
	if ic.Session != nil {
		ic.Session.AddEvent(ev)
	}
}

// Record appends an event to the session transcript without touching state.
// Fan-outs use it for per-child events whose deltas travel in the fan-in
// event instead.
func (ic *InvocationContext) Record(ev Event) {
	if ic.Session != nil {
		ic.Session.AddEvent(ev)
	}
}

// ChildOptions parameterize ForChild derivation.
type ChildOptions struct {
	// Agent identifies the child for event attribution.
	Agent AgentInfo
	// Branch extends the hierarchical branch path.
	Branch string
	// Namespace scopes the child's writes (empty inherits the parent's).
	Namespace string
	// SharedKeys declares unscoped append-only keys the child may write.
	SharedKeys []string
	// Snapshot freezes the child's state view (Parallel fan-out).
	Snapshot State
	// Context overrides the ambient context (e.g. a fan-out timeout).
	Context context.Context
}

// ForChild derives a context for a nested execution path with fresh staging
// buffers. Service handles (session, tools, logger) are shared; the branch,
// namespace and optional frozen snapshot isolate the child.
func (ic *InvocationContext) ForChild(opts ChildOptions) *InvocationContext {
	ctx := ic.Context
	if opts.Context != nil {
		ctx = opts.Context
	}
	ns := ic.Namespace
	if opts.Namespace != "" {
		ns = opts.Namespace
	}
	branch := ic.Branch
	if opts.Branch != "" {
		if branch != "" {
			branch = branch + "." + opts.Branch
		} else {
			branch = opts.Branch
		}
	}
	var shared map[string]struct{}
	if len(opts.SharedKeys) > 0 {
		shared = make(map[string]struct{}, len(opts.SharedKeys))
		for _, k := range opts.SharedKeys {
			shared[k] = struct{}{}
		}
	}
	snapshot := opts.Snapshot
	if snapshot == nil {
		snapshot = ic.snapshot
	}
	return &InvocationContext{
		Context:    ctx,
		SessionID:  ic.SessionID,
		RunID:      ic.RunID,
		Agent:      opts.Agent,
		Query:      ic.Query,
		Session:    ic.Session,
		Tools:      ic.Tools,
		Logger:     ic.Logger,
		Branch:     branch,
		Namespace:  ns,
		parent:     ic,
		sharedKeys: shared,
		snapshot:   snapshot,
		stateDelta: map[string]any{},
		appends:    map[string][]any{},
	}
}

// RemainingTime reports how long until the ambient deadline, or 0 when no
// deadline is set.
func (ic *InvocationContext) RemainingTime() time.Duration {
	if deadline, ok := ic.Context.Deadline(); ok {
		return time.Until(deadline)
	}
	return 0
}

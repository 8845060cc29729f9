package core

import (
	"time"

	"github.com/google/uuid"
)

// ChildStatus records how one child of a Parallel fan-out finished. The
// merged fan-in event carries one entry per child so downstream agents can
// observe which namespaces are populated.
type ChildStatus string

const (
	// ChildStatusOK means the child completed and its delta was merged.
	ChildStatusOK ChildStatus = "ok"
	// ChildStatusFailed means the child returned an error.
	ChildStatusFailed ChildStatus = "failed"
	// ChildStatusTimeout means the child did not finish inside the fan-out window.
	ChildStatusTimeout ChildStatus = "timeout"
)

// TerminalOutput is the user-facing payload of a pipeline. Only agents that
// conclude a stage (a converged loop, the final synthesizer) attach one.
type TerminalOutput struct {
	Text string         `json:"text"`
	Data map[string]any `json:"data,omitempty"`
}

// Event is the immutable record of one agent execution: who ran, what state
// it wrote, which tools it called and whether it produced terminal output.
// Events are appended to the session transcript in merge order, which is the
// audited write order of the state store.
type Event struct {
	ID     string `json:"id"`
	RunID  string `json:"run_id"`
	Author string `json:"author"`
	// Branch is the hierarchical path of the producing agent within the
	// composition tree (e.g. "ResearchStage.MarketResearcher").
	Branch string `json:"branch,omitempty"`
	// StateDelta holds key/value writes applied when the event is merged.
	StateDelta map[string]any `json:"state_delta,omitempty"`
	// Appends holds values appended to declared shared list keys, kept
	// separate from StateDelta so concurrent appenders never overwrite.
	Appends map[string][]any `json:"appends,omitempty"`
	// ToolCalls records every tool invocation made while producing the event.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Children records per-child outcomes for fan-in events.
	Children map[string]ChildStatus `json:"children,omitempty"`
	// Degraded lists children whose namespaces are missing from the merge.
	Degraded []string `json:"degraded,omitempty"`
	// Output is the optional terminal payload.
	Output *TerminalOutput `json:"output,omitempty"`
	// LoopState labels events emitted by the refinement controller
	// (generating, critiquing, converged, exhausted, failed).
	LoopState    string    `json:"loop_state,omitempty"`
	Iteration    int       `json:"iteration,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewEvent creates a bare event authored by author within a run. Prefer the
// helper constructors for common shapes.
func NewEvent(runID, author string) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Author:    author,
		Timestamp: time.Now().UTC(),
	}
}

// NewOutputEvent creates an event whose only purpose is terminal output.
func NewOutputEvent(runID, author, text string) Event {
	ev := NewEvent(runID, author)
	ev.Output = &TerminalOutput{Text: text}
	return ev
}

// NewErrorEvent records a failure in the transcript without state changes.
func NewErrorEvent(runID, author, code, message string) Event {
	ev := NewEvent(runID, author)
	ev.ErrorCode = code
	ev.ErrorMessage = message
	return ev
}

// HasOutput reports whether the event carries a terminal payload.
func (e Event) HasOutput() bool { return e.Output != nil && e.Output.Text != "" }

// Failed reports whether the event records an error.
func (e Event) Failed() bool { return e.ErrorCode != "" }

// StateKeys returns every key the event writes, deltas and shared appends
// together, in no particular order. The parallel combinator checks them
// against the child's namespace before merging.
func (e Event) StateKeys() []string {
	keys := make([]string, 0, len(e.StateDelta)+len(e.Appends))
	for k := range e.StateDelta {
		keys = append(keys, k)
	}
	for k := range e.Appends {
		keys = append(keys, k)
	}
	return keys
}

// NewID generates a unique identifier for events, sessions and runs.
func NewID() string { return uuid.NewString() }

package core

import (
	"context"
	"time"
)

// ToolStatus classifies the outcome of a tool invocation. The gateway always
// returns exactly one result per request; the status encodes how it ended.
type ToolStatus string

const (
	// ToolStatusSuccess means the tool produced a payload.
	ToolStatusSuccess ToolStatus = "success"
	// ToolStatusFailure means the tool failed permanently (or retries exhausted).
	ToolStatusFailure ToolStatus = "failure"
	// ToolStatusTimeout means the caller deadline elapsed before completion.
	ToolStatusTimeout ToolStatus = "timeout"
	// ToolStatusUnavailable means the tool's circuit breaker short-circuited
	// the call without attempting it.
	ToolStatusUnavailable ToolStatus = "unavailable"
)

// ToolRequest describes a single invocation of a registered tool. The
// Deadline is caller supplied; the gateway never runs past it.
type ToolRequest struct {
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args,omitempty"`
	Deadline time.Time      `json:"deadline,omitzero"`
}

// ToolResult is the uniform response folded back into an Event. Errors are
// encoded in Status/ErrorDetail rather than raised past the gateway boundary.
type ToolResult struct {
	Status      ToolStatus    `json:"status"`
	Payload     any           `json:"payload,omitempty"`
	ErrorCode   string        `json:"error_code,omitempty"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	Latency     time.Duration `json:"latency"`
	Attempts    int           `json:"attempts"`
}

// OK reports whether the invocation succeeded.
func (r ToolResult) OK() bool { return r.Status == ToolStatusSuccess }

// ToolCall pairs a request with its resolved result. Every request resolves
// to exactly one result before the owning Event is considered complete.
type ToolCall struct {
	ID      string      `json:"id"`
	Request ToolRequest `json:"request"`
	Result  ToolResult  `json:"result"`
}

// ToolInvoker is the gateway contract consumed by agents. Invoke always
// returns a result; it never panics past the boundary and never returns an
// error alongside it.
type ToolInvoker interface {
	Invoke(ctx context.Context, req ToolRequest) ToolResult
}

package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error codes attached to ToolResult.ErrorDetail and ToolError.Code. The
// gateway uses the code class to decide between retrying and failing fast.
const (
	// CodeToolNotFound indicates the requested tool name is not registered.
	CodeToolNotFound = "TOOL_NOT_FOUND"
	// CodeToolUnavailable indicates the tool's circuit breaker is open.
	CodeToolUnavailable = "TOOL_UNAVAILABLE"
	// CodeToolTimeout indicates the caller deadline elapsed before a result.
	CodeToolTimeout = "TOOL_TIMEOUT"
	// CodeTransient marks a retryable failure (network class).
	CodeTransient = "TRANSIENT_ERROR"
	// CodeValidation marks a permanent argument validation failure.
	CodeValidation = "VALIDATION_ERROR"
	// CodeExecution marks a permanent failure inside the tool body.
	CodeExecution = "EXECUTION_ERROR"
)

// ErrLoopExhausted signals that a refinement loop hit its iteration bound
// without the termination predicate being satisfied. It is advisory: the loop
// still emits its best candidate and the pipeline continues.
var ErrLoopExhausted = errors.New("refinement loop exhausted iteration budget")

// transientError marks an error as retryable without changing its message.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so the gateway retry policy treats it as retryable.
// Tools should wrap network and upstream-availability failures this way.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err belongs to the retryable failure class:
// errors wrapped via Transient plus context deadline expiry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// HardFailureError reports a combinator failure that aborts the pipeline:
// a Sequential child returned a fatal error, or every child of a Parallel
// fan-out failed. Child identifies the failing agent ("" when the whole
// fan-out failed) and Keys lists the state keys that existed when the chain
// broke, to support retry-from-failure diagnosis.
type HardFailureError struct {
	Combinator string
	Child      string
	Keys       []string
	Err        error
}

func (e *HardFailureError) Error() string {
	if e.Child != "" {
		return fmt.Sprintf("combinator %s failed at child %s: %v", e.Combinator, e.Child, e.Err)
	}
	return fmt.Sprintf("combinator %s failed: %v", e.Combinator, e.Err)
}

func (e *HardFailureError) Unwrap() error { return e.Err }

// PartialFailureError describes a Parallel fan-out in which some (but not
// all) children produced results. It is carried inside the merged event's
// metadata rather than returned as an error; the type exists so downstream
// code can attach it to logs and telemetry uniformly.
type PartialFailureError struct {
	Combinator string
	Degraded   []string
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("combinator %s degraded children: %v", e.Combinator, e.Degraded)
}

// EngineTimeoutError reports that the overall pipeline deadline elapsed
// before a terminal output was produced.
type EngineTimeoutError struct {
	Deadline time.Duration
	Stage    string
}

func (e *EngineTimeoutError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("engine deadline %s exceeded during stage %s", e.Deadline, e.Stage)
	}
	return fmt.Sprintf("engine deadline %s exceeded", e.Deadline)
}

// EngineError is the structured error surfaced to callers of Engine.Run.
// It identifies the failing stage and carries the partial transcript for
// diagnosis, so a caller never receives a silent empty result.
type EngineError struct {
	Stage      string
	Transcript []Event
	Err        error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("pipeline failed at stage %s: %v", e.Stage, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

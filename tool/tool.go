// Package tool implements the capability subsystem invoked through the
// gateway: a uniform Tool interface with schema validated arguments,
// consistent error codes, plus the built-in financial tool set (market data,
// portfolio math, risk metrics, calculators) recovered into Go from the
// advisory pipeline this runtime drives.
package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/internal/util"
)

// Tool defines the interface for capabilities registered on the gateway.
//
// Tool implementations should:
//   - Provide clear, descriptive names (snake_case recommended)
//   - Define proper JSON schema for parameters
//   - Return errors wrapped with core.Transient for retryable failure
//     classes (network, upstream availability) and plain errors otherwise
//   - Be safe for concurrent use; the gateway bounds concurrency per tool
//     but never serializes calls fully
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]interface{}

	// Call executes the tool. Arguments have been schema validated by the
	// time the gateway dispatches here.
	Call(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string      `json:"tool"`              // Name of the tool that failed
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Retryable reports whether the error belongs to the transient class the
// gateway retries: core.Transient wrapped errors and ToolErrors carrying the
// transient code.
func Retryable(err error) bool {
	if core.IsTransient(err) {
		return true
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te.Code == core.CodeTransient
	}
	return false
}

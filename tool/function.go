package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/internal/util"
	"github.com/hupe1980/finmesh/logging"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// gateway tool.
//
// Responsibilities:
//   - Holds a JSON-Schema-like parameter specification
//   - Validates supplied arguments against that schema before execution
//   - Normalizes error handling so callers receive *ToolError with
//     consistent codes:
//     VALIDATION_ERROR -> schema / argument mismatch (permanent)
//     EXECUTION_ERROR  -> underlying function returned a plain error
//     TRANSIENT_ERROR  -> underlying function returned a core.Transient error
//     (custom codes preserved if the function returns *ToolError directly)
//
// Concurrency: a FunctionTool has no internal mutable state after
// construction and is safe for concurrent use by multiple goroutines.
type FunctionTool struct {
	// Tool identifier (snake_case recommended)
	name string
	// Human-readable description shown to agents
	description string
	// JSON schema describing accepted arguments
	parameters map[string]any
	// User supplied implementation
	fn func(ctx context.Context, args map[string]any) (any, error)

	logger logging.Logger
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	roiTool := NewFunctionTool(
//	  "calculate_roi",
//	  "Calculate return on investment",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "initial": map[string]any{"type": "number"},
//	      "final":   map[string]any{"type": "number"},
//	    },
//	    "required": []string{"initial", "final"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    initial := args["initial"].(float64)
//	    final := args["final"].(float64)
//	    return (final - initial) / initial * 100, nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
		logger:      logging.NoOpLogger{},
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// jsonschema reflection. It is a convenience for simple argument containers.
//
// Example:
//
//	type RoiArgs struct {
//	  Initial float64 `json:"initial" jsonschema:"description=Initial value"`
//	  Final   float64 `json:"final" jsonschema:"description=Final value"`
//	}
//
//	roiTool := NewFunctionToolFromStruct("calculate_roi", "Calculate ROI", RoiArgs{}, fn)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, reflectSchema(structType), fn)
}

// reflectSchema converts a struct into the minimal map form the validator
// consumes, via an inline (non-referencing) jsonschema reflection.
func reflectSchema(structType any) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(structType)

	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// WithLogger attaches a logger used for per-call diagnostics.
func (t *FunctionTool) WithLogger(logger logging.Logger) *FunctionTool {
	t.logger = logger
	return t
}

// Name returns the unique tool name used in requests and registration.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description of the tool.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the (minimal) JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates the provided args against the declared schema then invokes
// the underlying function. Validation or execution failures are wrapped (or
// passed through) as *ToolError for uniform downstream handling.
//
// Error semantics:
//
//	*ToolError (returned directly) -> forwarded unchanged
//	validation failure             -> *ToolError{Code: "VALIDATION_ERROR"}
//	core.Transient wrapped error   -> *ToolError{Code: "TRANSIENT_ERROR"}
//	other error                    -> *ToolError{Code: "EXECUTION_ERROR"}
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	start := time.Now()

	t.logger.Debug("tool.call.start", "tool", t.name)

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		t.logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    core.CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok { // Already a ToolError -> just log and forward
			t.logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)
			return nil, toolErr
		}

		code := core.CodeExecution
		if core.IsTransient(err) {
			code = core.CodeTransient
		}

		t.logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    code,
		}
	}

	t.logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

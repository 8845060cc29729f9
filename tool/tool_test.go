package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/internal/util"
	"github.com/stretchr/testify/assert"
)

// -------------------- Schema & Validation Tests --------------------

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// Use []any to mirror possible JSON decoded schema shape
		"required": []any{"x"},
	}

	// Success
	err := util.ValidateParameters(map[string]any{"x": 5}, schema)
	assert.NoError(t, err)

	// Missing required
	err = util.ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Equal(t, "x", vErr.Field)
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	// Wrong type
	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	assert.Error(t, err)
}

func TestValidateParameters_RequiredAsStringSlice(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symbol": map[string]any{"type": "string"},
		},
		"required": []string{"symbol"},
	}
	assert.Error(t, util.ValidateParameters(map[string]any{}, schema))
	assert.NoError(t, util.ValidateParameters(map[string]any{"symbol": "AAPL"}, schema))
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	ft := NewFunctionTool("echo", "echoes input", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"msg": map[string]any{"type": "string"},
		},
		"required": []string{"msg"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args["msg"], nil
	})

	out, err := ft.Call(context.Background(), map[string]any{"msg": "hi"})
	assert.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestFunctionTool_ValidationFailure(t *testing.T) {
	ft := NewFunctionTool("echo", "echoes input", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"msg": map[string]any{"type": "string"},
		},
		"required": []string{"msg"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args["msg"], nil
	})

	_, err := ft.Call(context.Background(), map[string]any{})
	assert.Error(t, err)
	var te *ToolError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, core.CodeValidation, te.Code)
}

func TestFunctionTool_ErrorWrapping(t *testing.T) {
	transient := NewFunctionTool("flaky", "always fails transiently",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, core.Transient(errors.New("connection reset"))
		})

	_, err := transient.Call(context.Background(), map[string]any{})
	assert.Error(t, err)
	assert.True(t, Retryable(err))

	permanent := NewFunctionTool("broken", "always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("bad state")
		})

	_, err = permanent.Call(context.Background(), map[string]any{})
	assert.Error(t, err)
	assert.False(t, Retryable(err))
	var te *ToolError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, core.CodeExecution, te.Code)
}

type reflectArgs struct {
	Symbol string  `json:"symbol" jsonschema:"required" jsonschema_description:"Ticker symbol"`
	Years  float64 `json:"years,omitempty"`
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	ft := NewFunctionToolFromStruct("typed", "typed args", reflectArgs{},
		func(_ context.Context, args map[string]any) (any, error) {
			return args, nil
		})

	params := ft.Parameters()
	assert.Equal(t, "object", params["type"])
	props, ok := params["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "symbol")
	assert.Contains(t, props, "years")
	assert.NotContains(t, params, "$schema")
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(core.Transient(errors.New("timeout"))))
	assert.True(t, Retryable(&ToolError{Tool: "x", Code: core.CodeTransient}))
	assert.False(t, Retryable(&ToolError{Tool: "x", Code: core.CodeExecution}))
	assert.False(t, Retryable(errors.New("plain")))
	assert.False(t, Retryable(nil))
}

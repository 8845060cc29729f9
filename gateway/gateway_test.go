package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/tool"
)

var emptySchema = map[string]any{"type": "object", "properties": map[string]any{}}

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		DefaultTimeout: time.Second,
	}
}

func TestInvoke_Success(t *testing.T) {
	g := New(fastConfig())
	require.NoError(t, g.Register(tool.NewFunctionTool("ping", "replies", emptySchema,
		func(_ context.Context, _ map[string]any) (any, error) {
			return "pong", nil
		})))

	res := g.Invoke(context.Background(), core.ToolRequest{Tool: "ping"})
	assert.True(t, res.OK())
	assert.Equal(t, "pong", res.Payload)
	assert.Equal(t, 1, res.Attempts)
	assert.Greater(t, res.Latency, time.Duration(0))
}

func TestInvoke_UnknownTool(t *testing.T) {
	g := New(fastConfig())

	res := g.Invoke(context.Background(), core.ToolRequest{Tool: "nope"})
	assert.Equal(t, core.ToolStatusFailure, res.Status)
	assert.Equal(t, core.CodeToolNotFound, res.ErrorCode)
}

func TestRegister_DuplicateName(t *testing.T) {
	g := New(fastConfig())
	echo := tool.NewFunctionTool("echo", "echoes", emptySchema,
		func(_ context.Context, _ map[string]any) (any, error) { return nil, nil })

	require.NoError(t, g.Register(echo))
	assert.Error(t, g.Register(echo))
}

func TestInvoke_TransientRetry(t *testing.T) {
	var calls atomic.Int32
	g := New(fastConfig())
	require.NoError(t, g.Register(tool.NewFunctionTool("flaky", "fails twice", emptySchema,
		func(_ context.Context, _ map[string]any) (any, error) {
			if calls.Add(1) < 3 {
				return nil, core.Transient(errors.New("connection reset"))
			}
			return "ok", nil
		})))

	res := g.Invoke(context.Background(), core.ToolRequest{Tool: "flaky"})
	assert.True(t, res.OK())
	assert.Equal(t, 3, res.Attempts)
}

func TestInvoke_TransientExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	g := New(fastConfig())
	require.NoError(t, g.Register(tool.NewFunctionTool("down", "always transient", emptySchema,
		func(_ context.Context, _ map[string]any) (any, error) {
			calls.Add(1)
			return nil, core.Transient(errors.New("unreachable"))
		})))

	res := g.Invoke(context.Background(), core.ToolRequest{Tool: "down"})
	assert.Equal(t, core.ToolStatusFailure, res.Status)
	assert.Equal(t, core.CodeTransient, res.ErrorCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, res.Attempts)
}

func TestInvoke_PermanentFailureNoRetry(t *testing.T) {
	var calls atomic.Int32
	g := New(fastConfig())
	require.NoError(t, g.Register(tool.NewFunctionTool("broken", "permanent failure", emptySchema,
		func(_ context.Context, _ map[string]any) (any, error) {
			calls.Add(1)
			return nil, errors.New("bad input shape")
		})))

	res := g.Invoke(context.Background(), core.ToolRequest{Tool: "broken"})
	assert.Equal(t, core.ToolStatusFailure, res.Status)
	assert.Equal(t, core.CodeExecution, res.ErrorCode)
	assert.Equal(t, int32(1), calls.Load(), "permanent failures are not retried")
}

func TestInvoke_DeadlineProducesTimeout(t *testing.T) {
	g := New(fastConfig())
	require.NoError(t, g.Register(tool.NewFunctionTool("slow", "blocks", emptySchema,
		func(ctx context.Context, _ map[string]any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})))

	res := g.Invoke(context.Background(), core.ToolRequest{
		Tool:     "slow",
		Deadline: time.Now().Add(20 * time.Millisecond),
	})
	assert.Equal(t, core.ToolStatusTimeout, res.Status)
	assert.Equal(t, core.CodeToolTimeout, res.ErrorCode)
}

func TestInvoke_BreakerOpensAndRecovers(t *testing.T) {
	healthy := atomic.Bool{}
	cfg := fastConfig()
	cfg.MaxAttempts = 1
	cfg.BreakerThreshold = 2
	cfg.BreakerCooldown = 30 * time.Millisecond
	g := New(cfg)
	require.NoError(t, g.Register(tool.NewFunctionTool("svc", "toggleable", emptySchema,
		func(_ context.Context, _ map[string]any) (any, error) {
			if healthy.Load() {
				return "up", nil
			}
			return nil, errors.New("service error")
		})))

	req := core.ToolRequest{Tool: "svc"}

	// Two failures trip the breaker.
	g.Invoke(context.Background(), req)
	g.Invoke(context.Background(), req)
	state, ok := g.BreakerState("svc")
	require.True(t, ok)
	assert.Equal(t, "open", state)

	// Open circuit short-circuits without calling the tool.
	res := g.Invoke(context.Background(), req)
	assert.Equal(t, core.ToolStatusUnavailable, res.Status)
	assert.Equal(t, core.CodeToolUnavailable, res.ErrorCode)
	assert.Equal(t, 0, res.Attempts)

	// After the cooldown a successful probe closes the circuit again.
	healthy.Store(true)
	time.Sleep(40 * time.Millisecond)
	res = g.Invoke(context.Background(), req)
	assert.True(t, res.OK())
	state, _ = g.BreakerState("svc")
	assert.Equal(t, "closed", state)
}

func TestInvoke_ConcurrencyLimit(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxConcurrent = 1
	g := New(cfg)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, g.Register(tool.NewFunctionTool("hold", "holds its slot", emptySchema,
		func(_ context.Context, _ map[string]any) (any, error) {
			close(started)
			<-release
			return "done", nil
		})))

	go g.Invoke(context.Background(), core.ToolRequest{Tool: "hold"})
	<-started

	// Second call cannot get a slot before its deadline.
	res := g.Invoke(context.Background(), core.ToolRequest{
		Tool:     "hold",
		Deadline: time.Now().Add(20 * time.Millisecond),
	})
	assert.Equal(t, core.ToolStatusTimeout, res.Status)
	close(release)
}

func TestInvoke_PanicRecovered(t *testing.T) {
	g := New(fastConfig())
	require.NoError(t, g.Register(tool.NewFunctionTool("boom", "panics", emptySchema,
		func(_ context.Context, _ map[string]any) (any, error) {
			panic("unexpected state")
		})))

	res := g.Invoke(context.Background(), core.ToolRequest{Tool: "boom"})
	assert.Equal(t, core.ToolStatusFailure, res.Status)
	assert.Equal(t, core.CodeExecution, res.ErrorCode)
	assert.Contains(t, res.ErrorDetail, "unexpected state")
}

func TestInvoke_ToolErrorCodePropagates(t *testing.T) {
	g := New(fastConfig())
	require.NoError(t, g.Register(tool.NewFunctionTool("strict", "rejects args", emptySchema,
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, tool.NewToolError("strict", "value out of range", core.CodeValidation)
		})))

	res := g.Invoke(context.Background(), core.ToolRequest{Tool: "strict"})
	assert.Equal(t, core.ToolStatusFailure, res.Status)
	assert.Equal(t, core.CodeValidation, res.ErrorCode)
}

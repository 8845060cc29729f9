// Package gateway is the single chokepoint between agents and tools. It owns
// the tool registry and wraps every invocation with deadline handling,
// transient retry, per-tool circuit breaking and per-tool load limits. The
// contract is strict: Invoke always returns exactly one ToolResult and never
// lets a tool failure escape as a panic or error.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/logging"
	"github.com/hupe1980/finmesh/telemetry"
	"github.com/hupe1980/finmesh/tool"
)

// Config controls retry, breaker and load limit behavior. Zero values fall
// back to the documented defaults.
type Config struct {
	// MaxAttempts caps tries per invocation, first call included. Default 3.
	MaxAttempts int
	// InitialBackoff is the first retry delay; subsequent delays grow
	// exponentially. Default 100ms.
	InitialBackoff time.Duration
	// MaxBackoff caps the retry delay. Default 2s.
	MaxBackoff time.Duration
	// BreakerThreshold is the consecutive failure count that opens a tool's
	// circuit. Default 5.
	BreakerThreshold int
	// BreakerCooldown is how long an open circuit rejects calls before
	// admitting a probe. Default 30s.
	BreakerCooldown time.Duration
	// MaxConcurrent caps in-flight calls per tool. Default 8.
	MaxConcurrent int64
	// RateLimit is an optional per-tool calls-per-second cap. Zero disables
	// rate limiting.
	RateLimit rate.Limit
	// RateBurst is the bucket size used with RateLimit. Default 1.
	RateBurst int
	// DefaultTimeout applies when a request carries no deadline and the
	// context has none either. Default 10s.
	DefaultTimeout time.Duration
	// Logger receives per-call diagnostics. Default NoOpLogger.
	Logger logging.Logger
	// Metrics receives per-call counters. Nil disables them.
	Metrics *telemetry.PipelineMetrics
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logging.NoOpLogger{}
	}
}

// entry bundles a registered tool with its isolation state. Breakers and
// limiters are per tool so one misbehaving tool cannot starve the rest.
type entry struct {
	tool    tool.Tool
	breaker *breaker
	limiter *limiter
}

// Gateway implements core.ToolInvoker over a named tool registry.
type Gateway struct {
	mu      sync.RWMutex
	tools   map[string]*entry
	cfg     Config
	metrics *telemetry.PipelineMetrics
	tracer  trace.Tracer
}

// New creates a gateway with the given configuration.
func New(cfg Config) *Gateway {
	cfg.applyDefaults()
	return &Gateway{
		tools:   make(map[string]*entry),
		cfg:     cfg,
		metrics: cfg.Metrics,
		tracer:  otel.Tracer("github.com/hupe1980/finmesh/gateway"),
	}
}

// UseMetrics attaches call counters to a gateway built without them. Metrics
// already configured win; a nil argument is ignored.
func (g *Gateway) UseMetrics(m *telemetry.PipelineMetrics) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m == nil || g.metrics != nil {
		return
	}
	g.metrics = m
}

// Register adds a tool under its own name. Names are unique; re-registering
// an existing name is an error.
func (g *Gateway) Register(t tool.Tool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	g.tools[t.Name()] = &entry{
		tool:    t,
		breaker: newBreaker(g.cfg.BreakerThreshold, g.cfg.BreakerCooldown),
		limiter: newLimiter(g.cfg.MaxConcurrent, g.cfg.RateLimit, g.cfg.RateBurst),
	}
	return nil
}

// RegisterAll registers every tool, stopping at the first duplicate.
func (g *Gateway) RegisterAll(tools ...tool.Tool) error {
	for _, t := range tools {
		if err := g.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Tools returns the registered tools sorted by nothing in particular; callers
// needing a stable order should sort by Name.
func (g *Gateway) Tools() []tool.Tool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]tool.Tool, 0, len(g.tools))
	for _, e := range g.tools {
		out = append(out, e.tool)
	}
	return out
}

// BreakerState reports the current circuit state for a tool name, for
// diagnostics and tests.
func (g *Gateway) BreakerState(name string) (string, bool) {
	g.mu.RLock()
	e, ok := g.tools[name]
	g.mu.RUnlock()
	if !ok {
		return "", false
	}
	return e.breaker.currentState().String(), true
}

// Invoke runs one tool call end to end. It never returns an error or panics;
// every outcome is encoded in the ToolResult status and error fields.
func (g *Gateway) Invoke(ctx context.Context, req core.ToolRequest) (result core.ToolResult) {
	start := time.Now()
	attempts := 0

	defer func() {
		if r := recover(); r != nil {
			result = core.ToolResult{
				Status:      core.ToolStatusFailure,
				ErrorCode:   core.CodeExecution,
				ErrorDetail: fmt.Sprintf("tool panicked: %v", r),
				Latency:     time.Since(start),
				Attempts:    attempts,
			}
			g.cfg.Logger.Error("tool panic recovered",
				"tool", req.Tool, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	ctx, span := g.tracer.Start(ctx, "gateway.invoke",
		trace.WithAttributes(attribute.String("tool.name", req.Tool)))
	defer func() {
		span.SetAttributes(
			attribute.String("tool.status", string(result.Status)),
			attribute.Int("tool.attempts", result.Attempts),
		)
		span.End()
	}()

	g.mu.RLock()
	e, ok := g.tools[req.Tool]
	g.mu.RUnlock()
	if !ok {
		return g.finish(ctx, req, core.ToolResult{
			Status:      core.ToolStatusFailure,
			ErrorCode:   core.CodeToolNotFound,
			ErrorDetail: fmt.Sprintf("no tool registered under %q", req.Tool),
			Latency:     time.Since(start),
		}, nil)
	}

	// Resolve the effective deadline: explicit request deadline wins, then
	// any context deadline, then the configured default.
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	} else if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.DefaultTimeout)
		defer cancel()
	}

	if !e.breaker.allow() {
		return g.finish(ctx, req, core.ToolResult{
			Status:      core.ToolStatusUnavailable,
			ErrorCode:   core.CodeToolUnavailable,
			ErrorDetail: fmt.Sprintf("circuit open for tool %q", req.Tool),
			Latency:     time.Since(start),
		}, nil)
	}

	if err := e.limiter.acquire(ctx); err != nil {
		e.breaker.record(false)
		return g.finish(ctx, req, core.ToolResult{
			Status:      core.ToolStatusTimeout,
			ErrorCode:   core.CodeToolTimeout,
			ErrorDetail: "deadline elapsed while waiting for a call slot",
			Latency:     time.Since(start),
		}, err)
	}
	defer e.limiter.release()

	op := func() (any, error) {
		attempts++
		out, err := e.tool.Call(ctx, req.Args)
		if err != nil {
			if tool.Retryable(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return out, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.InitialBackoff
	bo.MaxInterval = g.cfg.MaxBackoff

	payload, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(g.cfg.MaxAttempts)),
	)
	latency := time.Since(start)

	if err != nil {
		e.breaker.record(false)
		if ctx.Err() != nil {
			return g.finish(ctx, req, core.ToolResult{
				Status:      core.ToolStatusTimeout,
				ErrorCode:   core.CodeToolTimeout,
				ErrorDetail: err.Error(),
				Latency:     latency,
				Attempts:    attempts,
			}, err)
		}
		return g.finish(ctx, req, core.ToolResult{
			Status:      core.ToolStatusFailure,
			ErrorCode:   errorCode(err),
			ErrorDetail: err.Error(),
			Latency:     latency,
			Attempts:    attempts,
		}, err)
	}

	e.breaker.record(true)
	return g.finish(ctx, req, core.ToolResult{
		Status:   core.ToolStatusSuccess,
		Payload:  payload,
		Latency:  latency,
		Attempts: attempts,
	}, nil)
}

func (g *Gateway) finish(ctx context.Context, req core.ToolRequest, res core.ToolResult, err error) core.ToolResult {
	g.mu.RLock()
	metrics := g.metrics
	g.mu.RUnlock()
	metrics.RecordToolCall(ctx, req.Tool, string(res.Status))

	if pl, ok := g.cfg.Logger.(*logging.PipelineLogger); ok {
		pl.LogToolCall(req.Tool, res.Latency, res.Attempts, res.OK(), err)
	} else if err != nil {
		g.cfg.Logger.Warn("tool call failed",
			"tool", req.Tool, "status", string(res.Status), "error", err.Error())
	}
	return res
}

// errorCode extracts the categorized code from a wrapped tool error, falling
// back to the generic execution code.
func errorCode(err error) string {
	var te *tool.ToolError
	if errors.As(err, &te) && te.Code != "" {
		return te.Code
	}
	if core.IsTransient(err) {
		return core.CodeTransient
	}
	return core.CodeExecution
}

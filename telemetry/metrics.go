package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/hupe1980/finmesh"

// PipelineMetrics collects pipeline-level counters and histograms. Built on
// the global meter provider, so it is noop-safe when telemetry is disabled.
// All Record methods accept a nil receiver and do nothing, which lets
// callers skip metrics without guarding every call site.
type PipelineMetrics struct {
	meter metric.Meter

	runTotal       metric.Int64Counter
	runFailures    metric.Int64Counter
	stageDuration  metric.Float64Histogram
	toolCallTotal  metric.Int64Counter
	loopIterations metric.Int64Histogram
}

// NewPipelineMetrics registers the pipeline instruments on the global meter.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &PipelineMetrics{meter: meter}

	var err error
	m.runTotal, err = meter.Int64Counter("pipeline.run.total",
		metric.WithDescription("Total pipeline runs"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	m.runFailures, err = meter.Int64Counter("pipeline.run.failures",
		metric.WithDescription("Pipeline runs ending in hard failure or timeout"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	m.stageDuration, err = meter.Float64Histogram("pipeline.stage.duration",
		metric.WithDescription("Wall-clock duration per pipeline stage"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.toolCallTotal, err = meter.Int64Counter("gateway.tool_call.total",
		metric.WithDescription("Tool invocations routed through the gateway"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}

	m.loopIterations, err = meter.Int64Histogram("pipeline.loop.iterations",
		metric.WithDescription("Refinement iterations consumed per run"),
		metric.WithUnit("{iteration}"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRun counts one completed run and its terminal status.
func (m *PipelineMetrics) RecordRun(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.runTotal.Add(ctx, 1, attrs)
	if status != "completed" {
		m.runFailures.Add(ctx, 1, attrs)
	}
}

// RecordStage records one stage execution.
func (m *PipelineMetrics) RecordStage(ctx context.Context, stage string, dur time.Duration, success bool) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, dur.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("success", success),
	))
}

// RecordToolCall counts one gateway invocation.
func (m *PipelineMetrics) RecordToolCall(ctx context.Context, tool, status string) {
	if m == nil {
		return
	}
	m.toolCallTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("status", status),
	))
}

// RecordLoop records the iteration count of one refinement loop run.
func (m *PipelineMetrics) RecordLoop(ctx context.Context, loop string, iterations int) {
	if m == nil {
		return
	}
	m.loopIterations.Record(ctx, int64(iterations), metric.WithAttributes(
		attribute.String("loop", loop),
	))
}

package engine

import (
	"sync"
	"time"

	"github.com/hupe1980/finmesh/core"
)

// StageCallback observes pipeline stage boundaries. Before is called with a
// nil event and zero duration; After receives the merged stage event (nil on
// failure) and the stage's wall-clock duration. Callbacks must not mutate
// the event and must not block for long; they run on the engine goroutine.
type StageCallback func(stage string, ev *core.Event, err error, dur time.Duration)

// Hooks carries the optional callbacks an engine invokes around each stage.
type Hooks struct {
	BeforeStage []StageCallback
	AfterStage  []StageCallback
}

func (h *Hooks) before(stage string) {
	for _, cb := range h.BeforeStage {
		cb(stage, nil, nil, 0)
	}
}

func (h *Hooks) after(stage string, ev *core.Event, err error, dur time.Duration) {
	for _, cb := range h.AfterStage {
		cb(stage, ev, err, dur)
	}
}

// LatencyRecorder is an AfterStage callback that accumulates per-stage
// wall-clock latency across runs. Safe for concurrent use.
type LatencyRecorder struct {
	mu        sync.Mutex
	durations map[string][]time.Duration
}

// NewLatencyRecorder returns an empty recorder.
func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{durations: make(map[string][]time.Duration)}
}

// Record is the StageCallback to register under AfterStage.
func (r *LatencyRecorder) Record(stage string, _ *core.Event, _ error, dur time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[stage] = append(r.durations[stage], dur)
}

// Latencies returns a copy of the recorded durations per stage.
func (r *LatencyRecorder) Latencies() map[string][]time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]time.Duration, len(r.durations))
	for stage, ds := range r.durations {
		out[stage] = append([]time.Duration(nil), ds...)
	}
	return out
}

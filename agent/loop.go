package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/logging"
)

// Loop lifecycle labels attached to the events the controller emits.
const (
	LoopStateGenerating = "generating"
	LoopStateCritiquing = "critiquing"
	LoopStateConverged  = "converged"
	LoopStateExhausted  = "exhausted"
	LoopStateFailed     = "failed"
)

// DefaultMaxIterations applies when LoopConfig leaves the budget unset.
const DefaultMaxIterations = 3

// Predicate decides convergence after each critique pass. It receives the
// current state view and the 1-based iteration number.
type Predicate func(view core.State, iteration int) bool

// LoopAgent alternates a generator and a critic until the predicate accepts
// the candidate or the iteration budget is exhausted.
//
// The controller is a small state machine: generating -> critiquing ->
// (converged | next iteration) -> exhausted. Every phase emits an event
// labeled with the loop state and iteration, so the transcript reads as the
// refinement history.
//
// Exhaustion is not a hard failure. The most recent candidate is still the
// best available answer; Run returns it in a terminal event together with
// core.ErrLoopExhausted so callers can distinguish a converged result from a
// best-effort one. Generator or critic errors, by contrast, abort the loop
// with a HardFailureError.
type LoopAgent struct {
	BaseAgent
	generator     core.Agent
	critic        core.Agent
	maxIterations int
	candidateKey  string
	converged     Predicate
	namespace     string
	logger        logging.Logger
}

// LoopConfig parameterizes NewLoopAgent.
type LoopConfig struct {
	Name        string
	Description string
	// Generator produces or refines the candidate each iteration.
	Generator core.Agent
	// Critic evaluates the candidate and stages its critique.
	Critic core.Agent
	// MaxIterations bounds the refinement budget. Zero applies
	// DefaultMaxIterations; negative values are a construction error.
	MaxIterations int
	// CandidateKey is the state key (relative to Namespace) holding the
	// current candidate; its value becomes the terminal output text.
	CandidateKey string
	// Converged is consulted after every critique pass.
	Converged Predicate
	// Namespace scopes both children's writes.
	Namespace string
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// NewLoopAgent creates a generate/critique refinement controller.
func NewLoopAgent(cfg LoopConfig) (*LoopAgent, error) {
	if cfg.Name == "" {
		return nil, errors.New("loop agent requires a name")
	}
	if cfg.Generator == nil || cfg.Critic == nil {
		return nil, fmt.Errorf("loop agent %s requires both a generator and a critic", cfg.Name)
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("loop agent %s: max iterations must be positive, got %d", cfg.Name, cfg.MaxIterations)
	}
	if cfg.Converged == nil {
		return nil, fmt.Errorf("loop agent %s requires a convergence predicate", cfg.Name)
	}
	if cfg.CandidateKey == "" {
		return nil, fmt.Errorf("loop agent %s requires a candidate key", cfg.Name)
	}
	max := cfg.MaxIterations
	if max == 0 {
		max = DefaultMaxIterations
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	a := &LoopAgent{
		BaseAgent:     NewBaseAgent(cfg.Name, "loop"),
		generator:     cfg.Generator,
		critic:        cfg.Critic,
		maxIterations: max,
		candidateKey:  cfg.CandidateKey,
		converged:     cfg.Converged,
		namespace:     cfg.Namespace,
		logger:        logger,
	}
	if cfg.Description != "" {
		a.SetDescription(cfg.Description)
	}
	return a, nil
}

// MaxIterations returns the effective iteration budget.
func (a *LoopAgent) MaxIterations() int { return a.maxIterations }

// Run implements core.Agent.
func (a *LoopAgent) Run(inv *core.InvocationContext) (*core.Event, error) {
	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		if ev, err := a.phase(inv, a.generator, LoopStateGenerating, iteration); err != nil {
			return ev, err
		}
		if ev, err := a.phase(inv, a.critic, LoopStateCritiquing, iteration); err != nil {
			return ev, err
		}

		if a.converged(inv.View(), iteration) {
			done := inv.BuildEvent()
			done.LoopState = LoopStateConverged
			done.Iteration = iteration
			done.Output = a.candidateOutput(inv, iteration, true)
			return &done, nil
		}
	}

	// Budget spent without convergence: surface the latest candidate as a
	// best-effort result.
	exhausted := inv.BuildEvent()
	exhausted.LoopState = LoopStateExhausted
	exhausted.Iteration = a.maxIterations
	exhausted.Output = a.candidateOutput(inv, a.maxIterations, false)
	a.logger.Warn("refinement budget exhausted",
		"loop", a.Name(), "iterations", a.maxIterations)
	return &exhausted, core.ErrLoopExhausted
}

// phase runs one child (generator or critic), labels and merges its event.
// The returned event is only non-nil on the failure path, where it carries
// the failure label for the transcript.
func (a *LoopAgent) phase(inv *core.InvocationContext, child core.Agent, label string, iteration int) (*core.Event, error) {
	if err := inv.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	childInv := inv.ForChild(core.ChildOptions{
		Agent:     agentInfo(child),
		Branch:    fmt.Sprintf("%s#%d", child.Name(), iteration),
		Namespace: a.namespace,
	})

	ev, err := child.Run(childInv)
	if err != nil {
		fail := core.NewErrorEvent(inv.RunID, a.Name(), core.CodeExecution, err.Error())
		fail.LoopState = LoopStateFailed
		fail.Iteration = iteration
		inv.Record(fail)
		return nil, &core.HardFailureError{
			Combinator: a.Name(),
			Child:      child.Name(),
			Keys:       stateKeys(inv.View()),
			Err:        err,
		}
	}

	ev.LoopState = label
	ev.Iteration = iteration
	inv.Merge(*ev)

	if pl, ok := inv.Logger.(*logging.PipelineLogger); ok {
		pl.LogLoopIteration(a.Name(), iteration, label, time.Since(start))
	}
	return nil, nil
}

func (a *LoopAgent) candidateOutput(inv *core.InvocationContext, iteration int, converged bool) *core.TerminalOutput {
	view := inv.View()
	key := core.NamespaceKey(a.namespace, a.candidateKey)
	return &core.TerminalOutput{
		Text: view.GetString(key),
		Data: map[string]any{
			"iterations": iteration,
			"converged":  converged,
		},
	}
}

package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/logging"
)

// SequentialAgent coordinates the execution of multiple child agents in
// order. Each child's event is merged into the session before the next child
// starts, so later children always observe their predecessors' writes; that
// merge-before-next guarantee is the whole point of the combinator.
//
// A child error is a hard failure: the chain stops, the failure is recorded
// in the transcript, and a HardFailureError carrying the surviving state keys
// is returned so callers can diagnose (or resume) from the break point.
// Loop-budget exhaustion is the one non-fatal child error: the chain accepts
// the child's best-effort event and continues.
type SequentialAgent struct {
	BaseAgent
	children []Child
	logger   logging.Logger
}

// SequentialConfig parameterizes NewSequentialAgent.
type SequentialConfig struct {
	Name        string
	Description string
	// Children are executed in slice order. A child's Namespace scopes its
	// writes; empty inherits the parent scope.
	Children []Child
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// NewSequentialAgent creates a sequential execution coordinator.
func NewSequentialAgent(cfg SequentialConfig) (*SequentialAgent, error) {
	if cfg.Name == "" {
		return nil, errors.New("sequential agent requires a name")
	}
	if len(cfg.Children) == 0 {
		return nil, fmt.Errorf("sequential agent %s requires at least one child", cfg.Name)
	}
	for i, c := range cfg.Children {
		if c.Agent == nil {
			return nil, fmt.Errorf("sequential agent %s: child %d is nil", cfg.Name, i)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	a := &SequentialAgent{
		BaseAgent: NewBaseAgent(cfg.Name, "sequential"),
		children:  cfg.Children,
		logger:    logger,
	}
	if cfg.Description != "" {
		a.SetDescription(cfg.Description)
	}
	return a, nil
}

// Run implements core.Agent.
func (a *SequentialAgent) Run(inv *core.InvocationContext) (*core.Event, error) {
	start := time.Now()
	statuses := make(map[string]core.ChildStatus, len(a.children))
	var lastOutput *core.TerminalOutput

	for _, c := range a.children {
		if err := inv.Err(); err != nil {
			return nil, err
		}

		childInv := inv.ForChild(core.ChildOptions{
			Agent:      agentInfo(c.Agent),
			Branch:     c.Agent.Name(),
			Namespace:  c.Namespace,
			SharedKeys: c.SharedKeys,
		})

		ev, err := c.Agent.Run(childInv)
		if err != nil && !errors.Is(err, core.ErrLoopExhausted) {
			statuses[c.Agent.Name()] = core.ChildStatusFailed
			fail := core.NewErrorEvent(inv.RunID, a.Name(), core.CodeExecution, err.Error())
			fail.Branch = inv.Branch
			fail.Children = statuses
			inv.Record(fail)
			a.logStage(inv, time.Since(start), false, err)
			return nil, &core.HardFailureError{
				Combinator: a.Name(),
				Child:      c.Agent.Name(),
				Keys:       stateKeys(inv.View()),
				Err:        err,
			}
		}
		if err != nil {
			// Exhausted budget: the child still produced its best candidate.
			a.logger.Warn("child exhausted its iteration budget",
				"combinator", a.Name(), "child", c.Agent.Name())
		}
		if ev == nil {
			return nil, &core.HardFailureError{
				Combinator: a.Name(),
				Child:      c.Agent.Name(),
				Keys:       stateKeys(inv.View()),
				Err:        fmt.Errorf("child %s returned no event", c.Agent.Name()),
			}
		}

		inv.Merge(*ev)
		statuses[c.Agent.Name()] = core.ChildStatusOK
		if ev.HasOutput() {
			lastOutput = ev.Output
		}
	}

	summary := inv.BuildEvent()
	summary.Children = statuses
	summary.Output = lastOutput
	a.logStage(inv, time.Since(start), true, nil)
	return &summary, nil
}

func (a *SequentialAgent) logStage(inv *core.InvocationContext, dur time.Duration, success bool, err error) {
	if pl, ok := inv.Logger.(*logging.PipelineLogger); ok {
		pl.LogStageExecution(a.Name(), len(a.children), dur, success, err)
	}
}

func stateKeys(s core.State) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/logging"
)

// ParallelAgent fans child agents out concurrently over one frozen snapshot
// of the session state and merges the survivors at the barrier.
//
// Isolation rules:
//   - Every child writes into its own non-empty namespace, and namespaces
//     are unique across children, so concurrent deltas can never collide.
//     Uniqueness is checked at construction; each child's delta is checked
//     against its namespace again at the barrier, and a child that wrote
//     outside it is degraded rather than merged.
//   - The only cross-child keys are the declared shared append-only keys;
//     appends from different children interleave, they never overwrite.
//
// Failure rules:
//   - A failed or timed-out child degrades the result: its namespace is
//     simply absent from the merge and listed in the fan-in event's
//     Degraded field. Other children are unaffected.
//   - Only when every child fails does Run return a HardFailureError.
//
// Merging is deterministic: surviving child deltas are folded in child
// declaration order regardless of completion order, so equal inputs produce
// equal merged state.
type ParallelAgent struct {
	BaseAgent
	children []Child
	timeout  time.Duration
	logger   logging.Logger
}

// ParallelConfig parameterizes NewParallelAgent.
type ParallelConfig struct {
	Name        string
	Description string
	// Children run concurrently; each needs a unique namespace.
	Children []Child
	// Timeout bounds the whole fan-out window. Zero means the ambient
	// context deadline alone applies.
	Timeout time.Duration
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// NewParallelAgent creates a concurrent fan-out coordinator.
func NewParallelAgent(cfg ParallelConfig) (*ParallelAgent, error) {
	if cfg.Name == "" {
		return nil, errors.New("parallel agent requires a name")
	}
	if len(cfg.Children) == 0 {
		return nil, fmt.Errorf("parallel agent %s requires at least one child", cfg.Name)
	}
	seen := make(map[string]struct{}, len(cfg.Children))
	for i, c := range cfg.Children {
		if c.Agent == nil {
			return nil, fmt.Errorf("parallel agent %s: child %d is nil", cfg.Name, i)
		}
		if c.Namespace == "" {
			return nil, fmt.Errorf("parallel agent %s: child %s needs a namespace", cfg.Name, c.Agent.Name())
		}
		if _, dup := seen[c.Namespace]; dup {
			return nil, fmt.Errorf("parallel agent %s: namespace %q used twice", cfg.Name, c.Namespace)
		}
		seen[c.Namespace] = struct{}{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	a := &ParallelAgent{
		BaseAgent: NewBaseAgent(cfg.Name, "parallel"),
		children:  cfg.Children,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
	if cfg.Description != "" {
		a.SetDescription(cfg.Description)
	}
	return a, nil
}

type childResult struct {
	event *core.Event
	err   error
}

// Run implements core.Agent.
func (a *ParallelAgent) Run(inv *core.InvocationContext) (*core.Event, error) {
	start := time.Now()
	if err := inv.Err(); err != nil {
		return nil, err
	}

	ctx := inv.Context
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	// One snapshot, taken before the fan-out; every child observes exactly
	// this state no matter when it is scheduled.
	snapshot := inv.View()

	results := make([]childResult, len(a.children))
	var g errgroup.Group
	for i, c := range a.children {
		g.Go(func() error {
			childInv := inv.ForChild(core.ChildOptions{
				Agent:      agentInfo(c.Agent),
				Branch:     c.Agent.Name(),
				Namespace:  c.Namespace,
				SharedKeys: c.SharedKeys,
				Snapshot:   snapshot,
				Context:    ctx,
			})
			ev, err := c.Agent.Run(childInv)
			results[i] = childResult{event: ev, err: err}
			return nil
		})
	}
	_ = g.Wait() // children never return errors through the group

	// Deterministic fan-in: fold survivors in declaration order.
	fanIn := inv.BuildEvent()
	fanIn.Children = make(map[string]core.ChildStatus, len(a.children))
	fanIn.StateDelta = map[string]any{}
	fanIn.Appends = map[string][]any{}

	var failures []error
	for i, c := range a.children {
		name := c.Agent.Name()
		res := results[i]
		if res.err != nil || res.event == nil {
			status := core.ChildStatusFailed
			if res.err != nil && (errors.Is(res.err, context.DeadlineExceeded) || ctx.Err() != nil) {
				status = core.ChildStatusTimeout
			}
			fanIn.Children[name] = status
			fanIn.Degraded = append(fanIn.Degraded, name)
			err := res.err
			if err == nil {
				err = fmt.Errorf("child %s returned no event", name)
			}
			failures = append(failures, err)
			inv.Record(core.NewErrorEvent(inv.RunID, name, core.CodeExecution, err.Error()))
			continue
		}

		if stray := strayKeys(res.event, c); len(stray) > 0 {
			fanIn.Children[name] = core.ChildStatusFailed
			fanIn.Degraded = append(fanIn.Degraded, name)
			err := fmt.Errorf("child %s wrote outside namespace %q: %v", name, c.Namespace, stray)
			failures = append(failures, err)
			inv.Record(core.NewErrorEvent(inv.RunID, name, core.CodeExecution, err.Error()))
			continue
		}

		fanIn.Children[name] = core.ChildStatusOK
		for k, v := range res.event.StateDelta {
			fanIn.StateDelta[k] = v
		}
		for k, vs := range res.event.Appends {
			fanIn.Appends[k] = append(fanIn.Appends[k], vs...)
		}
		// Child transcript entry keeps per-child attribution; its delta is
		// applied once, through this fan-in event.
		inv.Record(*res.event)
	}

	if len(fanIn.Appends) == 0 {
		fanIn.Appends = nil
	}
	if len(fanIn.StateDelta) == 0 {
		fanIn.StateDelta = nil
	}

	if len(failures) == len(a.children) {
		a.logStage(inv, time.Since(start), false)
		return nil, &core.HardFailureError{
			Combinator: a.Name(),
			Keys:       stateKeys(inv.View()),
			Err:        errors.Join(failures...),
		}
	}

	if len(fanIn.Degraded) > 0 {
		partial := &core.PartialFailureError{Combinator: a.Name(), Degraded: fanIn.Degraded}
		a.logger.Warn("fan-out degraded", "combinator", a.Name(), "detail", partial.Error())
	}
	a.logStage(inv, time.Since(start), true)
	return &fanIn, nil
}

// strayKeys lists the keys of a child event that fall outside the child's
// namespace and its declared shared keys.
func strayKeys(ev *core.Event, c Child) []string {
	shared := make(map[string]struct{}, len(c.SharedKeys))
	for _, k := range c.SharedKeys {
		shared[k] = struct{}{}
	}
	var out []string
	for _, k := range ev.StateKeys() {
		if _, ok := shared[k]; ok {
			continue
		}
		if !strings.HasPrefix(k, c.Namespace+".") {
			out = append(out, k)
		}
	}
	return out
}

func (a *ParallelAgent) logStage(inv *core.InvocationContext, dur time.Duration, success bool) {
	if pl, ok := inv.Logger.(*logging.PipelineLogger); ok {
		pl.LogStageExecution(a.Name(), len(a.children), dur, success, nil)
	}
}

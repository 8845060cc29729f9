package agent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/finmesh/core"
)

func draftingLoop(t *testing.T, maxIterations, approveAt int) *LoopAgent {
	t.Helper()
	generator := NewLeafAgent("drafter", "writes a draft", func(inv *core.InvocationContext) (*core.TerminalOutput, error) {
		n := int(inv.View().GetFloat("rec.round"))
		if err := inv.SetState("round", float64(n+1)); err != nil {
			return nil, err
		}
		return nil, inv.SetState("current", fmt.Sprintf("draft-%d", n+1))
	})
	critic := NewLeafAgent("critic", "approves at a fixed round", func(inv *core.InvocationContext) (*core.TerminalOutput, error) {
		verdict := "revise"
		if int(inv.View().GetFloat("rec.round")) >= approveAt {
			verdict = "approved"
		}
		return nil, inv.SetState("critique", verdict)
	})

	loop, err := NewLoopAgent(LoopConfig{
		Name:          "refiner",
		Generator:     generator,
		Critic:        critic,
		MaxIterations: maxIterations,
		CandidateKey:  "current",
		Namespace:     "rec",
		Converged: func(view core.State, _ int) bool {
			return view.GetString("rec.critique") == "approved"
		},
	})
	require.NoError(t, err)
	return loop
}

func TestLoop_ConvergesWhenCriticApproves(t *testing.T) {
	loop := draftingLoop(t, 5, 2)

	inv, sess := newTestInvocation(t)
	ev, err := loop.Run(inv)
	require.NoError(t, err)

	assert.Equal(t, LoopStateConverged, ev.LoopState)
	assert.Equal(t, 2, ev.Iteration)
	require.True(t, ev.HasOutput())
	assert.Equal(t, "draft-2", ev.Output.Text)
	assert.Equal(t, true, ev.Output.Data["converged"])

	// Transcript carries the labeled refinement history.
	var labels []string
	for _, e := range sess.Events() {
		if e.LoopState != "" {
			labels = append(labels, e.LoopState)
		}
	}
	assert.Equal(t, []string{
		LoopStateGenerating, LoopStateCritiquing,
		LoopStateGenerating, LoopStateCritiquing,
	}, labels)
}

func TestLoop_ExhaustionReturnsBestCandidate(t *testing.T) {
	loop := draftingLoop(t, 3, 99)

	inv, _ := newTestInvocation(t)
	ev, err := loop.Run(inv)
	require.ErrorIs(t, err, core.ErrLoopExhausted)
	require.NotNil(t, ev, "exhaustion still yields the latest candidate")

	assert.Equal(t, LoopStateExhausted, ev.LoopState)
	assert.Equal(t, 3, ev.Iteration)
	assert.Equal(t, "draft-3", ev.Output.Text)
	assert.Equal(t, false, ev.Output.Data["converged"])
}

func TestLoop_DefaultIterationBudget(t *testing.T) {
	loop := draftingLoop(t, 0, 99)
	assert.Equal(t, DefaultMaxIterations, loop.MaxIterations())
}

func TestLoop_ConstructionErrors(t *testing.T) {
	gen := writerAgent("g", "k", 1)
	crit := writerAgent("c", "k", 2)
	always := func(core.State, int) bool { return true }

	_, err := NewLoopAgent(LoopConfig{Name: "l", Generator: gen, Critic: crit, MaxIterations: -1, CandidateKey: "k", Converged: always})
	assert.Error(t, err, "negative budget rejected")

	_, err = NewLoopAgent(LoopConfig{Name: "l", Generator: gen, CandidateKey: "k", Converged: always})
	assert.Error(t, err, "missing critic rejected")

	_, err = NewLoopAgent(LoopConfig{Name: "l", Generator: gen, Critic: crit, CandidateKey: "k"})
	assert.Error(t, err, "missing predicate rejected")

	_, err = NewLoopAgent(LoopConfig{Name: "l", Generator: gen, Critic: crit, Converged: always})
	assert.Error(t, err, "missing candidate key rejected")
}

func TestLoop_GeneratorFailureAborts(t *testing.T) {
	failing := NewLeafAgent("g", "fails", func(_ *core.InvocationContext) (*core.TerminalOutput, error) {
		return nil, errors.New("model unavailable")
	})
	loop, err := NewLoopAgent(LoopConfig{
		Name:         "refiner",
		Generator:    failing,
		Critic:       writerAgent("c", "critique", "ok"),
		CandidateKey: "current",
		Converged:    func(core.State, int) bool { return true },
	})
	require.NoError(t, err)

	inv, sess := newTestInvocation(t)
	_, err = loop.Run(inv)
	require.Error(t, err)
	var hard *core.HardFailureError
	require.True(t, errors.As(err, &hard))
	assert.Equal(t, "g", hard.Child)

	events := sess.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, LoopStateFailed, events[len(events)-1].LoopState)
}

func TestLoop_InsideSequentialIsNonFatal(t *testing.T) {
	loop := draftingLoop(t, 2, 99)
	after := writerAgent("after", "k", "ran")

	seq, err := NewSequentialAgent(SequentialConfig{
		Name: "stage",
		Children: []Child{
			{Agent: loop},
			{Agent: after, Namespace: "post"},
		},
	})
	require.NoError(t, err)

	inv, sess := newTestInvocation(t)
	ev, err := seq.Run(inv)
	require.NoError(t, err, "exhaustion does not abort the parent chain")
	assert.Equal(t, "ran", sess.Snapshot().GetString("post.k"))
	require.True(t, ev.HasOutput())
	assert.Equal(t, "draft-2", ev.Output.Text)
}

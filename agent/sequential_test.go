package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/logging"
)

func newTestInvocation(t *testing.T) (*core.InvocationContext, *core.Session) {
	t.Helper()
	sess := core.NewSession("sess-1", 0)
	inv := core.NewInvocationContext(context.Background(), "sess-1", "run-1",
		core.AgentInfo{Name: "root", Type: "sequential"}, "test query",
		sess, nil, logging.NoOpLogger{})
	return inv, sess
}

func writerAgent(name, key string, value any) *LeafAgent {
	return NewLeafAgent(name, "writes one key", func(inv *core.InvocationContext) (*core.TerminalOutput, error) {
		if err := inv.SetState(key, value); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

func TestSequential_StatePropagation(t *testing.T) {
	first := writerAgent("first", "step", "one")
	second := NewLeafAgent("second", "reads predecessor state", func(inv *core.InvocationContext) (*core.TerminalOutput, error) {
		// The predecessor's write must already be merged.
		v := inv.GetString("a.step")
		if v != "one" {
			return nil, errors.New("predecessor state not visible")
		}
		if err := inv.SetState("step", v+"-two"); err != nil {
			return nil, err
		}
		return &core.TerminalOutput{Text: "done"}, nil
	})

	seq, err := NewSequentialAgent(SequentialConfig{
		Name: "chain",
		Children: []Child{
			{Agent: first, Namespace: "a"},
			{Agent: second, Namespace: "b"},
		},
	})
	require.NoError(t, err)

	inv, sess := newTestInvocation(t)
	ev, err := seq.Run(inv)
	require.NoError(t, err)

	assert.Equal(t, core.ChildStatusOK, ev.Children["first"])
	assert.Equal(t, core.ChildStatusOK, ev.Children["second"])
	require.True(t, ev.HasOutput())
	assert.Equal(t, "done", ev.Output.Text)

	state := sess.Snapshot()
	assert.Equal(t, "one", state.GetString("a.step"))
	assert.Equal(t, "one-two", state.GetString("b.step"))
}

func TestSequential_ChildErrorAbortsChain(t *testing.T) {
	first := writerAgent("first", "k", 1)
	failing := NewLeafAgent("failing", "always fails", func(_ *core.InvocationContext) (*core.TerminalOutput, error) {
		return nil, errors.New("boom")
	})
	var thirdRan bool
	third := NewLeafAgent("third", "should not run", func(_ *core.InvocationContext) (*core.TerminalOutput, error) {
		thirdRan = true
		return nil, nil
	})

	seq, err := NewSequentialAgent(SequentialConfig{
		Name: "chain",
		Children: []Child{
			{Agent: first, Namespace: "a"},
			{Agent: failing, Namespace: "b"},
			{Agent: third, Namespace: "c"},
		},
	})
	require.NoError(t, err)

	inv, sess := newTestInvocation(t)
	_, err = seq.Run(inv)
	require.Error(t, err)
	assert.False(t, thirdRan)

	var hard *core.HardFailureError
	require.True(t, errors.As(err, &hard))
	assert.Equal(t, "chain", hard.Combinator)
	assert.Equal(t, "failing", hard.Child)
	assert.Contains(t, hard.Keys, "a.k", "surviving keys identify the break point")

	// First child's write survives; the failure is in the transcript.
	assert.Equal(t, 1, len(sess.Snapshot().KeysWithPrefix("a")))
	events := sess.Events()
	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].Failed())
}

func TestSequential_ConstructionErrors(t *testing.T) {
	_, err := NewSequentialAgent(SequentialConfig{Name: "empty"})
	assert.Error(t, err)

	_, err = NewSequentialAgent(SequentialConfig{Children: []Child{{Agent: writerAgent("a", "k", 1)}}})
	assert.Error(t, err)

	_, err = NewSequentialAgent(SequentialConfig{Name: "x", Children: []Child{{Agent: nil}}})
	assert.Error(t, err)
}

func TestSequential_CancelledContext(t *testing.T) {
	seq, err := NewSequentialAgent(SequentialConfig{
		Name:     "chain",
		Children: []Child{{Agent: writerAgent("a", "k", 1), Namespace: "a"}},
	})
	require.NoError(t, err)

	sess := core.NewSession("sess-1", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inv := core.NewInvocationContext(ctx, "sess-1", "run-1",
		core.AgentInfo{Name: "root"}, "q", sess, nil, logging.NoOpLogger{})

	_, err = seq.Run(inv)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSequential_AuditRecordsWriteOrder(t *testing.T) {
	seq, err := NewSequentialAgent(SequentialConfig{
		Name: "chain",
		Children: []Child{
			{Agent: writerAgent("w1", "k", "v1"), Namespace: "a"},
			{Agent: writerAgent("w2", "k", "v2"), Namespace: "b"},
		},
	})
	require.NoError(t, err)

	inv, sess := newTestInvocation(t)
	_, err = seq.Run(inv)
	require.NoError(t, err)

	audit := sess.Audit()
	require.Len(t, audit, 2)
	assert.Equal(t, "a.k", audit[0].Key)
	assert.Equal(t, "w1", audit[0].Author)
	assert.Equal(t, "b.k", audit[1].Key)
	assert.Less(t, audit[0].Seq, audit[1].Seq)
}

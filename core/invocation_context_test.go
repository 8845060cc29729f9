package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/finmesh/logging"
)

func testInvocation(sess *Session) *InvocationContext {
	return NewInvocationContext(context.Background(), sess.ID, "run-1",
		AgentInfo{Name: "root", Type: "sequential"}, "query", sess, nil, logging.NoOpLogger{})
}

func TestSetStateIsNamespaced(t *testing.T) {
	sess := NewSession("s1", 0)
	inv := testInvocation(sess)

	child := inv.ForChild(ChildOptions{
		Agent:     AgentInfo{Name: "worker", Type: "leaf"},
		Branch:    "worker",
		Namespace: "research.market",
	})
	require.NoError(t, child.SetState("price", 42.0))

	ev := child.BuildEvent()
	assert.Equal(t, map[string]any{"research.market.price": 42.0}, ev.StateDelta)
	assert.Equal(t, "worker", ev.Author)
	assert.Equal(t, "worker", ev.Branch)
}

func TestSetStateRejectsSharedKeys(t *testing.T) {
	sess := NewSession("s1", 0)
	inv := testInvocation(sess)

	child := inv.ForChild(ChildOptions{
		Agent:      AgentInfo{Name: "worker"},
		Namespace:  "ns",
		SharedKeys: []string{"notes"},
	})
	assert.Error(t, child.SetState("notes", "x"), "shared keys must use AppendShared")
	assert.NoError(t, child.AppendShared("notes", "x"))
	assert.Error(t, child.AppendShared("other", "y"), "undeclared shared key rejected")
}

func TestGetStateReadOrder(t *testing.T) {
	sess := NewSession("s1", 0)
	sess.Set("k", "session", "w")
	inv := testInvocation(sess)

	// Live context reads through to the session.
	v, ok := inv.GetState("k")
	require.True(t, ok)
	assert.Equal(t, "session", v)

	// Staged writes shadow the session.
	require.NoError(t, inv.SetState("k", "staged"))
	v, _ = inv.GetState("k")
	assert.Equal(t, "staged", v)
}

func TestSnapshotIsolatedChildIgnoresLaterSessionWrites(t *testing.T) {
	sess := NewSession("s1", 0)
	sess.Set("seen", "yes", "w")
	inv := testInvocation(sess)

	child := inv.ForChild(ChildOptions{
		Agent:     AgentInfo{Name: "worker"},
		Namespace: "ns",
		Snapshot:  sess.Snapshot(),
	})

	sess.Set("late", "write", "w")

	_, ok := child.GetState("late")
	assert.False(t, ok, "frozen view must not observe post-snapshot writes")
	v, _ := child.GetState("seen")
	assert.Equal(t, "yes", v)
}

func TestMergeRespectsIsolation(t *testing.T) {
	sess := NewSession("s1", 0)
	inv := testInvocation(sess)

	// Live merge applies immediately.
	ev := NewEvent("run-1", "a")
	ev.StateDelta = map[string]any{"x": 1}
	inv.Merge(ev)
	assert.True(t, sess.Snapshot().Has("x"))

	// Isolated merge stages instead of applying.
	iso := inv.ForChild(ChildOptions{
		Agent:    AgentInfo{Name: "stage"},
		Snapshot: sess.Snapshot(),
	})
	ev2 := NewEvent("run-1", "b")
	ev2.StateDelta = map[string]any{"y": 2}
	iso.Merge(ev2)
	assert.False(t, sess.Snapshot().Has("y"), "isolated merge must not touch the session")

	// The staged write surfaces in the isolated context's own event.
	out := iso.BuildEvent()
	assert.Equal(t, 2, out.StateDelta["y"])

	// And it was visible to descendants through the parent chain.
	iso.stateDelta["z"] = 3
	grandchild := iso.ForChild(ChildOptions{Agent: AgentInfo{Name: "gc"}})
	v, ok := grandchild.GetState("z")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestCallToolWithoutGateway(t *testing.T) {
	sess := NewSession("s1", 0)
	inv := testInvocation(sess)

	res := inv.CallTool("anything", nil)
	assert.Equal(t, ToolStatusFailure, res.Status)
	assert.Equal(t, CodeToolNotFound, res.ErrorCode)

	ev := inv.BuildEvent()
	require.Len(t, ev.ToolCalls, 1)
	assert.Equal(t, "anything", ev.ToolCalls[0].Request.Tool)
}

type fixedInvoker struct{ res ToolResult }

func (f fixedInvoker) Invoke(context.Context, ToolRequest) ToolResult { return f.res }

func TestCallToolRecordsCalls(t *testing.T) {
	sess := NewSession("s1", 0)
	inv := testInvocation(sess)
	inv.Tools = fixedInvoker{res: ToolResult{Status: ToolStatusSuccess, Payload: "ok", Attempts: 1}}

	res := inv.CallTool("get_stock_price", map[string]any{"symbol": "AAPL"})
	assert.True(t, res.OK())

	ev := inv.BuildEvent()
	require.Len(t, ev.ToolCalls, 1)
	assert.True(t, ev.ToolCalls[0].Result.OK())

	// Buffers reset after BuildEvent.
	ev2 := inv.BuildEvent()
	assert.Empty(t, ev2.ToolCalls)
}

func TestForChildBranchPath(t *testing.T) {
	sess := NewSession("s1", 0)
	inv := testInvocation(sess)

	stage := inv.ForChild(ChildOptions{Agent: AgentInfo{Name: "stage"}, Branch: "ResearchStage"})
	worker := stage.ForChild(ChildOptions{Agent: AgentInfo{Name: "w"}, Branch: "MarketResearcher"})
	assert.Equal(t, "ResearchStage.MarketResearcher", worker.Branch)
}

func TestRemainingTime(t *testing.T) {
	sess := NewSession("s1", 0)
	inv := testInvocation(sess)
	assert.Equal(t, time.Duration(0), inv.RemainingTime())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	inv2 := NewInvocationContext(ctx, "s1", "r1", AgentInfo{Name: "a"}, "q", sess, nil, nil)
	assert.Greater(t, inv2.RemainingTime(), 50*time.Second)
}

package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSetAndAudit(t *testing.T) {
	s := NewSession("s1", 0)

	s.Set("price", 42.0, "market")
	s.Set("price", 43.0, "news")

	v, ok := s.Get("price")
	require.True(t, ok)
	assert.Equal(t, 43.0, v, "last writer wins")

	audit := s.Audit()
	require.Len(t, audit, 2)
	assert.Equal(t, "market", audit[0].Author)
	assert.Equal(t, "news", audit[1].Author)
	assert.Less(t, audit[0].Seq, audit[1].Seq)
}

func TestSessionConcurrentWritersDisjointKeys(t *testing.T) {
	s := NewSession("s1", 0)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set(fmt.Sprintf("k%d", i), i, "w")
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap, 50)
	assert.Len(t, s.Audit(), 50)
}

func TestSessionSnapshotIsImmutable(t *testing.T) {
	s := NewSession("s1", 0)
	s.Set("k", "before", "w")

	snap := s.Snapshot()
	s.Set("k", "after", "w")

	assert.Equal(t, "before", snap.GetString("k"))
	assert.Equal(t, "after", s.Snapshot().GetString("k"))
}

func TestSessionApplyEvent(t *testing.T) {
	s := NewSession("s1", 0)

	ev := NewEvent("run-1", "researcher")
	ev.StateDelta = map[string]any{"research.market.summary": "bullish"}
	ev.Appends = map[string][]any{"notes": {"n1", "n2"}}
	s.ApplyEvent(ev)

	snap := s.Snapshot()
	assert.Equal(t, "bullish", snap.GetString("research.market.summary"))
	assert.Equal(t, []any{"n1", "n2"}, snap["notes"])

	events := s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "researcher", events[0].Author)

	// Transcript order matches write order.
	audit := s.Audit()
	require.Len(t, audit, 3)
}

func TestSessionAppendCreatesList(t *testing.T) {
	s := NewSession("s1", 0)
	s.Append("warnings", "w1", "a")
	s.Append("warnings", "w2", "b")

	v, ok := s.Get("warnings")
	require.True(t, ok)
	assert.Equal(t, []any{"w1", "w2"}, v)
}

func TestSessionStatusAndExpiry(t *testing.T) {
	s := NewSession("s1", 10*time.Millisecond)
	assert.Equal(t, SessionActive, s.Status())
	assert.False(t, s.Expired())

	s.SetStatus(SessionCompleted)
	assert.Equal(t, SessionCompleted, s.Status())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, s.Expired())

	eternal := NewSession("s2", 0)
	assert.False(t, eternal.Expired())
}

func TestNamespaceKey(t *testing.T) {
	assert.Equal(t, "research.market.price", NamespaceKey("research.market", "price"))
	assert.Equal(t, "price", NamespaceKey("", "price"))
}

func TestStateAccessors(t *testing.T) {
	s := State{
		"a.x": "str",
		"a.y": 3,
		"b.z": 1.5,
	}
	assert.Equal(t, "str", s.GetString("a.x"))
	assert.Equal(t, "", s.GetString("missing"))
	assert.Equal(t, 3.0, s.GetFloat("a.y"))
	assert.Equal(t, 1.5, s.GetFloat("b.z"))
	assert.True(t, s.Has("b.z"))
	assert.ElementsMatch(t, []string{"a.x", "a.y"}, s.KeysWithPrefix("a"))
}

package advisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/gateway"
	"github.com/hupe1980/finmesh/logging"
	"github.com/hupe1980/finmesh/model"
	"github.com/hupe1980/finmesh/tool"
)

func newPipelineInvocation(t *testing.T) (*core.InvocationContext, *core.Session) {
	t.Helper()
	g := gateway.New(gateway.Config{DefaultTimeout: 5 * time.Second})
	require.NoError(t, g.RegisterAll(tool.Defaults()...))

	sess := core.NewSession("sess-1", 0)
	inv := core.NewInvocationContext(context.Background(), "sess-1", "run-1",
		core.AgentInfo{Name: "engine"}, "should I rebalance toward technology stocks?",
		sess, g, logging.NoOpLogger{})
	return inv, sess
}

func TestParseAllocations(t *testing.T) {
	alloc, err := ParseAllocations("We suggest 40% stocks, 30% bonds, 20% real estate, 10% cash.")
	require.NoError(t, err)
	assert.InDelta(t, 0.40, alloc["stocks"], 0.001)
	assert.InDelta(t, 0.30, alloc["bonds"], 0.001)
	assert.InDelta(t, 0.20, alloc["real estate"], 0.001)
	assert.InDelta(t, 0.10, alloc["cash"], 0.001)
	assert.InDelta(t, 1.0, allocationSum(alloc), 0.001)

	_, err = ParseAllocations("hold everything as is")
	assert.Error(t, err)

	alloc, err = ParseAllocations("put 55.5% in stocks, 44.5% in bonds")
	require.NoError(t, err)
	assert.InDelta(t, 0.555, alloc["stocks"], 0.001)
}

func TestResearchStage(t *testing.T) {
	p, err := BuildPipeline(PipelineConfig{})
	require.NoError(t, err)

	inv, sess := newPipelineInvocation(t)
	ev, err := p.Research.Run(inv)
	require.NoError(t, err)
	assert.Empty(t, ev.Degraded)
	inv.Merge(*ev)

	state := sess.Snapshot()
	assert.NotEmpty(t, state.GetString(NamespaceMarket+".summary"))
	assert.NotEmpty(t, state.GetString(NamespaceNews+".summary"))
	assert.NotEmpty(t, state.GetString(NamespaceEcon+".summary"))
	assert.True(t, state.Has(NamespaceMarket+".quote.aapl"))
	assert.True(t, state.Has(NamespaceEcon+".volatility"))
}

func TestAnalysisStageBuildsOnResearch(t *testing.T) {
	p, err := BuildPipeline(PipelineConfig{})
	require.NoError(t, err)

	inv, sess := newPipelineInvocation(t)
	sess.Set("user.holdings", map[string]any{
		"tech stocks": 0.6,
		"bonds":       0.25,
		"cash":        0.15,
	}, "seed")
	sess.Set("user.portfolio_value", 250_000.0, "seed")

	ev, err := p.Analysis.Run(inv)
	require.NoError(t, err)
	inv.Merge(*ev)

	state := sess.Snapshot()
	assert.True(t, state.Has(NamespaceRisk+".metrics"))
	assert.True(t, state.Has(NamespaceRisk+".var"))
	assert.True(t, state.Has(NamespacePortfolio+".composition"))
	assert.True(t, state.Has(NamespacePerformance+".sharpe"))
	assert.NotEmpty(t, state.GetString(NamespacePerformance+".summary"))
}

func TestRecommendationLoopConverges(t *testing.T) {
	p, err := BuildPipeline(PipelineConfig{MaxRefinements: 4})
	require.NoError(t, err)

	inv, sess := newPipelineInvocation(t)
	sess.Set("user.risk_profile", "balanced", "seed")

	ev, err := p.Recommendation.Run(inv)
	require.NoError(t, err)
	require.NotNil(t, ev.Output)

	alloc, err := ParseAllocations(ev.Output.Text)
	require.NoError(t, err, "final recommendation must carry parseable allocations")
	assert.InDelta(t, 1.0, allocationSum(alloc), 0.015)
	assert.GreaterOrEqual(t, len(alloc), 3)
	assert.Equal(t, true, ev.Output.Data["converged"])
}

func TestHeuristicCriticVerdicts(t *testing.T) {
	critic, err := NewRecommendationCritic(nil)
	require.NoError(t, err)

	run := func(draft string) string {
		sess := core.NewSession("s", 0)
		sess.Set("recommendation.current", draft, "seed")
		inv := core.NewInvocationContext(context.Background(), "s", "r",
			core.AgentInfo{Name: "root"}, "q", sess, nil, logging.NoOpLogger{})
		child := inv.ForChild(core.ChildOptions{
			Agent:     core.AgentInfo{Name: critic.Name()},
			Namespace: NamespaceRec,
		})
		ev, err := critic.Run(child)
		require.NoError(t, err)
		inv.Merge(*ev)
		return sess.Snapshot().GetString("recommendation.critique")
	}

	good := run("50% stocks, 30% bonds, 10% real estate, 10% cash")
	assert.Contains(t, good, ApprovedPrefix)

	noCash := run("70% stocks, 30% bonds, 0% cash")
	assert.Contains(t, noCash, RevisePrefix)
	assert.Contains(t, noCash, "cash")

	badSum := run("40% stocks, 30% bonds, 10% cash")
	assert.Contains(t, badSum, RevisePrefix)

	unparseable := run("just buy the dip")
	assert.Contains(t, unparseable, RevisePrefix)
}

func TestModelBackedRecommendation(t *testing.T) {
	// Scripted model: first draft is rejected structurally by the real
	// critic model script, second draft approved.
	gen := model.NewMockModel(
		"I recommend 60% stocks, 25% bonds, 10% real estate, 5% cash because markets look firm.",
	)
	critic := model.NewMockModel(
		"REVISE: too equity heavy for the stated risk level",
		"APPROVED: mix matches the risk profile",
	)

	genAgent, err := NewRecommendationGenerator(gen)
	require.NoError(t, err)
	criticAgent, err := NewRecommendationCritic(critic)
	require.NoError(t, err)

	assert.Equal(t, "RecommendationGenerator", genAgent.Name())
	assert.Equal(t, "RecommendationCritic", criticAgent.Name())

	inv, sess := newPipelineInvocation(t)
	loopChild := inv.ForChild(core.ChildOptions{
		Agent:     core.AgentInfo{Name: "loop"},
		Namespace: NamespaceRec,
	})

	// Drive one generate/critique round by hand.
	genInv := loopChild.ForChild(core.ChildOptions{Agent: core.AgentInfo{Name: genAgent.Name()}, Namespace: NamespaceRec})
	ev, err := genAgent.Run(genInv)
	require.NoError(t, err)
	inv.Merge(*ev)

	critInv := loopChild.ForChild(core.ChildOptions{Agent: core.AgentInfo{Name: criticAgent.Name()}, Namespace: NamespaceRec})
	ev, err = criticAgent.Run(critInv)
	require.NoError(t, err)
	inv.Merge(*ev)

	state := sess.Snapshot()
	assert.Contains(t, state.GetString("recommendation.current"), "60% stocks")
	assert.False(t, Approved(state, 1))

	// Second critique approves.
	critInv = loopChild.ForChild(core.ChildOptions{Agent: core.AgentInfo{Name: criticAgent.Name()}, Namespace: NamespaceRec})
	ev, err = criticAgent.Run(critInv)
	require.NoError(t, err)
	inv.Merge(*ev)
	assert.True(t, Approved(sess.Snapshot(), 2))
}

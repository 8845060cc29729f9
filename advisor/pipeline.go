package advisor

import (
	"time"

	"github.com/hupe1980/finmesh/agent"
	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/logging"
	"github.com/hupe1980/finmesh/model"
)

// Stage and namespace names shared with the engine and its callers.
const (
	StageResearch       = "ResearchStage"
	StageAnalysis       = "AnalysisStage"
	StageRecommendation = "RecommendationStage"

	NamespaceMarket      = "research.market"
	NamespaceNews        = "research.news"
	NamespaceEcon        = "research.econ"
	NamespaceRisk        = "analysis.risk"
	NamespacePortfolio   = "analysis.portfolio"
	NamespacePerformance = "analysis.performance"
	NamespaceRec         = "recommendation"
)

// Pipeline bundles the three stage agents executed in order by the engine.
type Pipeline struct {
	Research       core.Agent
	Analysis       core.Agent
	Recommendation core.Agent
}

// Stages returns the agents in execution order.
func (p Pipeline) Stages() []core.Agent {
	return []core.Agent{p.Research, p.Analysis, p.Recommendation}
}

// PipelineConfig parameterizes BuildPipeline.
type PipelineConfig struct {
	// Model backs the recommendation loop; nil selects the deterministic
	// heuristic generator and critic.
	Model model.Model
	// ResearchTimeout bounds the research fan-out window. Default 30s.
	ResearchTimeout time.Duration
	// MaxRefinements bounds the recommendation loop. Zero applies the loop
	// default.
	MaxRefinements int
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// BuildPipeline wires the full advisory pipeline: parallel research over
// isolated namespaces, sequential analysis where each analyst observes its
// predecessors, and the recommendation refinement loop.
func BuildPipeline(cfg PipelineConfig) (Pipeline, error) {
	if cfg.ResearchTimeout <= 0 {
		cfg.ResearchTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	research, err := agent.NewParallelAgent(agent.ParallelConfig{
		Name:        StageResearch,
		Description: "Concurrent market, news and macro research",
		Timeout:     cfg.ResearchTimeout,
		Logger:      logger,
		Children: []agent.Child{
			{Agent: NewMarketResearcher(), Namespace: NamespaceMarket},
			{Agent: NewNewsResearcher(), Namespace: NamespaceNews},
			{Agent: NewEconResearcher(), Namespace: NamespaceEcon},
		},
	})
	if err != nil {
		return Pipeline{}, err
	}

	analysis, err := agent.NewSequentialAgent(agent.SequentialConfig{
		Name:        StageAnalysis,
		Description: "Ordered risk, portfolio and performance analysis",
		Logger:      logger,
		Children: []agent.Child{
			{Agent: NewRiskAnalyst(), Namespace: NamespaceRisk},
			{Agent: NewPortfolioAnalyst(), Namespace: NamespacePortfolio},
			{Agent: NewPerformanceAnalyst(), Namespace: NamespacePerformance},
		},
	})
	if err != nil {
		return Pipeline{}, err
	}

	generator, err := NewRecommendationGenerator(cfg.Model)
	if err != nil {
		return Pipeline{}, err
	}
	critic, err := NewRecommendationCritic(cfg.Model)
	if err != nil {
		return Pipeline{}, err
	}
	recommendation, err := agent.NewLoopAgent(agent.LoopConfig{
		Name:          StageRecommendation,
		Description:   "Generate and critique until the recommendation converges",
		Generator:     generator,
		Critic:        critic,
		MaxIterations: cfg.MaxRefinements,
		CandidateKey:  "current",
		Namespace:     NamespaceRec,
		Converged:     Approved,
		Logger:        logger,
	})
	if err != nil {
		return Pipeline{}, err
	}

	return Pipeline{
		Research:       research,
		Analysis:       analysis,
		Recommendation: recommendation,
	}, nil
}

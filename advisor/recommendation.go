package advisor

import (
	"fmt"
	"strings"

	"github.com/hupe1980/finmesh/agent"
	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/model"
)

// Critique verdict prefixes. The convergence predicate keys off ApprovedPrefix.
const (
	ApprovedPrefix = "APPROVED"
	RevisePrefix   = "REVISE"
)

// profileAllocations maps a risk profile to the baseline mix the heuristic
// generator starts from.
var profileAllocations = map[string]map[string]float64{
	"conservative": {"stocks": 0.30, "bonds": 0.50, "cash": 0.20},
	"balanced":     {"stocks": 0.50, "bonds": 0.30, "real estate": 0.10, "cash": 0.10},
	"aggressive":   {"stocks": 0.70, "bonds": 0.10, "real estate": 0.10, "cash": 0.10},
}

// NewRecommendationGenerator returns the generator side of the refinement
// loop. With a model it prompts from the analysis state; without one it
// derives the recommendation deterministically from the risk profile and
// the prior critique.
func NewRecommendationGenerator(m model.Model) (core.Agent, error) {
	if m != nil {
		return agent.NewModelAgent(agent.ModelAgentConfig{
			Name:        "RecommendationGenerator",
			Description: "Drafts an investment recommendation from the analysis results",
			Model:       m,
			System: "You are a financial advisor. Recommend a portfolio allocation as " +
				"percentages (e.g. \"50% stocks, 30% bonds, 20% cash\") with a short rationale. " +
				"If a critique is present, address every point it raises.",
			Prompt: `Query: {{.query}}
Market research: {{index .state "research.market.summary"}}
News: {{index .state "research.news.summary"}}
Macro: {{index .state "research.econ.summary"}}
Risk: {{index .state "analysis.risk.summary"}}
Portfolio: {{index .state "analysis.portfolio.summary"}}
Performance: {{index .state "analysis.performance.summary"}}
Previous critique: {{index .state "recommendation.critique"}}`,
			OutputKey: "current",
		})
	}

	return agent.NewLeafAgent(
		"RecommendationGenerator",
		"Derives an allocation recommendation from the analysis results",
		func(inv *core.InvocationContext) (*core.TerminalOutput, error) {
			profile := "balanced"
			if v, ok := inv.GetState("user.risk_profile"); ok {
				if s, ok := v.(string); ok {
					if _, known := profileAllocations[s]; known {
						profile = s
					}
				}
			}
			alloc := make(map[string]float64, len(profileAllocations[profile]))
			for k, v := range profileAllocations[profile] {
				alloc[k] = v
			}

			// A bearish news read shifts a slice from stocks to cash.
			if inv.GetString("research.news.sentiment") == "bearish" && alloc["stocks"] >= 0.10 {
				alloc["stocks"] -= 0.05
				alloc["cash"] += 0.05
			}
			// Address a prior critique asking for more diversification.
			critique := inv.GetString("recommendation.critique")
			if strings.Contains(critique, "diversification") && alloc["stocks"] > 0.20 {
				alloc["stocks"] -= 0.10
				alloc["real estate"] += 0.05
				alloc["commodities"] += 0.05
			}

			text := fmt.Sprintf("Recommended allocation: %s. Based on %s risk profile; %s.",
				formatAllocations(alloc), profile,
				inv.GetString("analysis.risk.summary"))
			return nil, inv.SetState("current", text)
		},
	), nil
}

// NewRecommendationCritic returns the critic side of the loop. The critique
// always starts with APPROVED or REVISE so convergence stays parseable.
func NewRecommendationCritic(m model.Model) (core.Agent, error) {
	if m != nil {
		return agent.NewModelAgent(agent.ModelAgentConfig{
			Name:        "RecommendationCritic",
			Description: "Reviews the draft recommendation for soundness",
			Model:       m,
			System: "You are a skeptical investment reviewer. Reply starting with exactly " +
				"APPROVED or REVISE, then list your reasons. Check: allocations sum to 100%, " +
				"the mix matches the stated risk level, diversification is adequate.",
			Prompt: `Draft: {{index .state "recommendation.current"}}
Risk analysis: {{index .state "analysis.risk.summary"}}
Portfolio analysis: {{index .state "analysis.portfolio.summary"}}`,
			OutputKey: "critique",
		})
	}

	return agent.NewLeafAgent(
		"RecommendationCritic",
		"Checks the draft allocation for structural soundness",
		func(inv *core.InvocationContext) (*core.TerminalOutput, error) {
			draft := inv.GetString("recommendation.current")
			var issues []string

			alloc, err := ParseAllocations(draft)
			if err != nil {
				issues = append(issues, "no parseable allocation percentages")
			} else {
				if sum := allocationSum(alloc); sum < 0.99 || sum > 1.01 {
					issues = append(issues, fmt.Sprintf("allocations sum to %.0f%%, expected 100%%", sum*100))
				}
				if len(alloc) < 3 {
					issues = append(issues, "insufficient diversification, use at least three asset classes")
				}
				if w, ok := alloc["cash"]; !ok || w < 0.05 {
					issues = append(issues, "hold at least 5% cash for liquidity")
				}
			}

			verdict := ApprovedPrefix + ": allocation is structurally sound"
			if len(issues) > 0 {
				verdict = RevisePrefix + ": " + strings.Join(issues, "; ")
			}
			return nil, inv.SetState("critique", verdict)
		},
	), nil
}

// Approved reports whether the loop's critique key carries an approval.
func Approved(view core.State, _ int) bool {
	return strings.HasPrefix(view.GetString("recommendation.critique"), ApprovedPrefix)
}

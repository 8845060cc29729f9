package advisor

import (
	"fmt"

	"github.com/hupe1980/finmesh/agent"
	"github.com/hupe1980/finmesh/core"
)

// userHoldings reads the seeded portfolio, falling back to a balanced
// default so the pipeline stays runnable without user context.
func userHoldings(inv *core.InvocationContext) map[string]any {
	if v, ok := inv.GetState("user.holdings"); ok {
		if h, ok := v.(map[string]any); ok && len(h) > 0 {
			return h
		}
	}
	return map[string]any{"stocks": 0.55, "bonds": 0.30, "cash": 0.15}
}

func userPortfolioValue(inv *core.InvocationContext) float64 {
	if v, ok := inv.GetState("user.portfolio_value"); ok {
		if f := num(v); f > 0 {
			return f
		}
	}
	return 100_000
}

// NewRiskAnalyst returns the leaf agent quantifying downside exposure:
// portfolio metrics, parametric VaR and stress scenarios.
func NewRiskAnalyst() *agent.LeafAgent {
	return agent.NewLeafAgent(
		"RiskAnalyst",
		"Quantifies portfolio risk via metrics, VaR and stress scenarios",
		func(inv *core.InvocationContext) (*core.TerminalOutput, error) {
			holdings := userHoldings(inv)
			value := userPortfolioValue(inv)

			metrics := inv.CallTool("calculate_portfolio_metrics", map[string]any{"holdings": holdings})
			if !metrics.OK() {
				return nil, fmt.Errorf("portfolio metrics failed: %s", metrics.ErrorDetail)
			}
			mp, _ := metrics.Payload.(map[string]any)
			if err := inv.SetState("metrics", mp); err != nil {
				return nil, err
			}
			if err := inv.SetState("level", mp["risk_level"]); err != nil {
				return nil, err
			}

			volatility := num(mp["expected_volatility"])
			if volatility <= 0 {
				volatility = 0.15
			}
			vaRes := inv.CallTool("calculate_var", map[string]any{
				"portfolio_value": value,
				"volatility":      volatility,
			})
			if vaRes.OK() {
				vp, _ := vaRes.Payload.(map[string]any)
				if err := inv.SetState("var", vp); err != nil {
					return nil, err
				}
			}

			stress := inv.CallTool("run_stress_test", map[string]any{"portfolio_value": value})
			if stress.OK() {
				sp, _ := stress.Payload.(map[string]any)
				if err := inv.SetState("stress", sp); err != nil {
					return nil, err
				}
				if err := inv.SetState("worst_case_pct", sp["worst_case_pct"]); err != nil {
					return nil, err
				}
			}

			return nil, inv.SetState("summary",
				fmt.Sprintf("risk level %v, volatility %.1f%%", mp["risk_level"], volatility*100))
		},
	)
}

// NewPortfolioAnalyst returns the leaf agent reviewing composition and
// proposing rebalancing moves toward the user's risk profile.
func NewPortfolioAnalyst() *agent.LeafAgent {
	return agent.NewLeafAgent(
		"PortfolioAnalyst",
		"Reviews composition, concentration and rebalancing opportunities",
		func(inv *core.InvocationContext) (*core.TerminalOutput, error) {
			holdings := userHoldings(inv)

			comp := inv.CallTool("analyze_portfolio", map[string]any{"holdings": holdings})
			if !comp.OK() {
				return nil, fmt.Errorf("portfolio analysis failed: %s", comp.ErrorDetail)
			}
			cp, _ := comp.Payload.(map[string]any)
			if err := inv.SetState("composition", cp); err != nil {
				return nil, err
			}

			div := inv.CallTool("calculate_diversification_score", map[string]any{"holdings": holdings})
			if div.OK() {
				dp, _ := div.Payload.(map[string]any)
				if err := inv.SetState("diversification", dp); err != nil {
					return nil, err
				}
			}

			profile := "balanced"
			if v, ok := inv.GetState("user.risk_profile"); ok {
				if s, ok := v.(string); ok && s != "" {
					profile = s
				}
			}
			reb := inv.CallTool("suggest_rebalancing", map[string]any{
				"holdings":       holdings,
				"target_profile": profile,
			})
			if reb.OK() {
				rp, _ := reb.Payload.(map[string]any)
				if err := inv.SetState("rebalancing", rp); err != nil {
					return nil, err
				}
			}

			return nil, inv.SetState("summary",
				fmt.Sprintf("%v positions, concentration %v", cp["position_count"], cp["concentration_risk"]))
		},
	)
}

// NewPerformanceAnalyst returns the leaf agent scoring expected performance:
// projected growth, ROI and risk-adjusted return.
func NewPerformanceAnalyst() *agent.LeafAgent {
	return agent.NewLeafAgent(
		"PerformanceAnalyst",
		"Projects growth and computes risk-adjusted return measures",
		func(inv *core.InvocationContext) (*core.TerminalOutput, error) {
			value := userPortfolioValue(inv)

			expectedReturn := 0.08
			volatility := 0.15
			if v, ok := inv.GetState("analysis.risk.metrics"); ok {
				if mp, ok := v.(map[string]any); ok {
					if r := num(mp["expected_annual_return"]); r != 0 {
						expectedReturn = r
					}
					if vol := num(mp["expected_volatility"]); vol > 0 {
						volatility = vol
					}
				}
			}

			growth := inv.CallTool("calculate_compound_interest", map[string]any{
				"principal":   value,
				"annual_rate": expectedReturn,
				"years":       10.0,
			})
			if growth.OK() {
				gp, _ := growth.Payload.(map[string]any)
				if err := inv.SetState("projection_10y", gp); err != nil {
					return nil, err
				}
			}

			sharpe := inv.CallTool("calculate_sharpe_ratio", map[string]any{
				"annual_return": expectedReturn,
				"volatility":    volatility,
			})
			if !sharpe.OK() {
				return nil, fmt.Errorf("sharpe calculation failed: %s", sharpe.ErrorDetail)
			}
			sp, _ := sharpe.Payload.(map[string]any)
			if err := inv.SetState("sharpe", sp); err != nil {
				return nil, err
			}

			return nil, inv.SetState("summary",
				fmt.Sprintf("expected return %.1f%%, sharpe %.2f (%v)",
					expectedReturn*100, num(sp["sharpe_ratio"]), sp["rating"]))
		},
	)
}

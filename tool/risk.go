package tool

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/finmesh/core"
)

// zScores for the confidence levels the VaR tool supports.
var zScores = map[string]float64{
	"90": 1.282,
	"95": 1.645,
	"99": 2.326,
}

// NewVaRTool returns the tool computing parametric value at risk for a
// portfolio value and annualized volatility.
func NewVaRTool() *FunctionTool {
	return NewFunctionTool(
		"calculate_var",
		"Calculate parametric value at risk (VaR) for a portfolio",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"portfolio_value": map[string]any{"type": "number", "description": "Total portfolio value"},
				"volatility":      map[string]any{"type": "number", "description": "Annualized volatility as a fraction, e.g. 0.18"},
				"confidence":      map[string]any{"type": "string", "description": "Confidence level: 90, 95 or 99"},
				"horizon_days":    map[string]any{"type": "number", "description": "Holding period in trading days, default 1"},
			},
			"required": []string{"portfolio_value", "volatility"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			value, _ := toFloat(args["portfolio_value"])
			vol, _ := toFloat(args["volatility"])
			if value <= 0 {
				return nil, NewToolError("calculate_var", "portfolio_value must be positive", core.CodeValidation)
			}
			if vol <= 0 || vol > 2 {
				return nil, NewToolError("calculate_var", "volatility must be a fraction in (0, 2]", core.CodeValidation)
			}
			confidence, _ := args["confidence"].(string)
			if confidence == "" {
				confidence = "95"
			}
			z, ok := zScores[confidence]
			if !ok {
				return nil, NewToolError("calculate_var",
					fmt.Sprintf("unsupported confidence level %q", confidence), core.CodeValidation)
			}
			horizon := 1.0
			if h, ok := toFloat(args["horizon_days"]); ok && h > 0 {
				horizon = h
			}

			dailyVol := vol / math.Sqrt(252)
			varAmount := value * z * dailyVol * math.Sqrt(horizon)

			return map[string]any{
				"value_at_risk":  varAmount,
				"var_percent":    varAmount / value * 100,
				"confidence":     confidence,
				"horizon_days":   horizon,
				"interpretation": fmt.Sprintf("with %s%% confidence, losses should not exceed %.2f over %v day(s)", confidence, varAmount, horizon),
			}, nil
		},
	)
}

// NewRiskProfileTool returns the tool mapping investor answers onto a risk
// profile (conservative, balanced, aggressive).
func NewRiskProfileTool() *FunctionTool {
	return NewFunctionTool(
		"assess_risk_profile",
		"Assess an investor risk profile from horizon and loss tolerance",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"horizon_years":      map[string]any{"type": "number", "description": "Investment horizon in years"},
				"loss_tolerance_pct": map[string]any{"type": "number", "description": "Largest tolerable one-year drawdown in percent"},
				"income_stability":   map[string]any{"type": "string", "description": "One of low, medium, high"},
			},
			"required": []string{"horizon_years", "loss_tolerance_pct"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			horizon, _ := toFloat(args["horizon_years"])
			tolerance, _ := toFloat(args["loss_tolerance_pct"])
			if horizon <= 0 {
				return nil, NewToolError("assess_risk_profile", "horizon_years must be positive", core.CodeValidation)
			}
			if tolerance < 0 || tolerance > 100 {
				return nil, NewToolError("assess_risk_profile", "loss_tolerance_pct must be in [0, 100]", core.CodeValidation)
			}

			score := 0
			switch {
			case horizon >= 15:
				score += 3
			case horizon >= 7:
				score += 2
			case horizon >= 3:
				score += 1
			}
			switch {
			case tolerance >= 30:
				score += 3
			case tolerance >= 15:
				score += 2
			case tolerance >= 8:
				score += 1
			}
			if stability, _ := args["income_stability"].(string); stability == "high" {
				score++
			}

			profile := "conservative"
			equityRange := "20-40%"
			if score >= 5 {
				profile = "aggressive"
				equityRange = "70-90%"
			} else if score >= 3 {
				profile = "balanced"
				equityRange = "45-65%"
			}

			return map[string]any{
				"profile":            profile,
				"score":              score,
				"suggested_equity":   equityRange,
				"horizon_years":      horizon,
				"loss_tolerance_pct": tolerance,
			}, nil
		},
	)
}

// stressScenario is one market shock applied by the stress test tool. Equity
// and bond shocks are one-year return impacts in fraction terms.
type stressScenario struct {
	name        string
	equityShock float64
	bondShock   float64
}

var stressScenarios = []stressScenario{
	{"2008-style credit crisis", -0.45, 0.05},
	{"rapid rate hike cycle", -0.15, -0.12},
	{"tech sector correction", -0.25, 0.02},
	{"stagflation", -0.20, -0.08},
	{"mild recession", -0.12, 0.04},
}

// NewStressTestTool returns the tool applying historical shock scenarios to a
// portfolio and reporting projected drawdowns.
func NewStressTestTool() *FunctionTool {
	return NewFunctionTool(
		"run_stress_test",
		"Run historical shock scenarios against a portfolio",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"portfolio_value": map[string]any{"type": "number"},
				"equity_weight":   map[string]any{"type": "number", "description": "Equity fraction of the portfolio, default 0.6"},
				"bond_weight":     map[string]any{"type": "number", "description": "Bond fraction of the portfolio, default 0.3"},
			},
			"required": []string{"portfolio_value"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			value, _ := toFloat(args["portfolio_value"])
			if value <= 0 {
				return nil, NewToolError("run_stress_test", "portfolio_value must be positive", core.CodeValidation)
			}
			equity := 0.6
			if w, ok := toFloat(args["equity_weight"]); ok {
				equity = w
			}
			bonds := 0.3
			if w, ok := toFloat(args["bond_weight"]); ok {
				bonds = w
			}
			if equity < 0 || bonds < 0 || equity+bonds > 1.000001 {
				return nil, NewToolError("run_stress_test", "equity and bond weights must be non-negative and sum to at most 1", core.CodeValidation)
			}

			worst := 0.0
			results := make([]map[string]any, 0, len(stressScenarios))
			for _, s := range stressScenarios {
				impact := equity*s.equityShock + bonds*s.bondShock
				loss := value * impact
				if impact < worst {
					worst = impact
				}
				results = append(results, map[string]any{
					"scenario":        s.name,
					"impact_pct":      impact * 100,
					"projected_value": value + loss,
					"projected_loss":  -loss,
				})
			}

			return map[string]any{
				"portfolio_value": value,
				"scenarios":       results,
				"worst_case_pct":  worst * 100,
			}, nil
		},
	)
}

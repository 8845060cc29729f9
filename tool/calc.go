package tool

import (
	"context"
	"math"

	"github.com/hupe1980/finmesh/core"
)

// NewCompoundInterestTool returns the tool projecting compound growth of a
// principal with optional periodic contributions.
func NewCompoundInterestTool() *FunctionTool {
	return NewFunctionTool(
		"calculate_compound_interest",
		"Project compound growth of a principal with optional monthly contributions",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"principal":            map[string]any{"type": "number"},
				"annual_rate":          map[string]any{"type": "number", "description": "Annual rate as a fraction, e.g. 0.07"},
				"years":                map[string]any{"type": "number"},
				"monthly_contribution": map[string]any{"type": "number"},
			},
			"required": []string{"principal", "annual_rate", "years"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			principal, _ := toFloat(args["principal"])
			rate, _ := toFloat(args["annual_rate"])
			years, _ := toFloat(args["years"])
			if principal < 0 || years <= 0 {
				return nil, NewToolError("calculate_compound_interest",
					"principal must be non-negative and years positive", core.CodeValidation)
			}
			if rate < -1 || rate > 1 {
				return nil, NewToolError("calculate_compound_interest",
					"annual_rate must be a fraction in [-1, 1]", core.CodeValidation)
			}
			monthly, _ := toFloat(args["monthly_contribution"])

			months := int(years * 12)
			monthlyRate := rate / 12
			balance := principal
			contributed := principal
			for i := 0; i < months; i++ {
				balance = balance*(1+monthlyRate) + monthly
				contributed += monthly
			}

			return map[string]any{
				"final_value":       balance,
				"total_contributed": contributed,
				"total_growth":      balance - contributed,
				"years":             years,
			}, nil
		},
	)
}

// NewROITool returns the tool computing simple and annualized return on
// investment.
func NewROITool() *FunctionTool {
	return NewFunctionTool(
		"calculate_roi",
		"Calculate simple and annualized return on investment",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"initial_value": map[string]any{"type": "number"},
				"final_value":   map[string]any{"type": "number"},
				"years":         map[string]any{"type": "number", "description": "Holding period in years, default 1"},
			},
			"required": []string{"initial_value", "final_value"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			initial, _ := toFloat(args["initial_value"])
			final, _ := toFloat(args["final_value"])
			if initial <= 0 {
				return nil, NewToolError("calculate_roi", "initial_value must be positive", core.CodeValidation)
			}
			years := 1.0
			if y, ok := toFloat(args["years"]); ok && y > 0 {
				years = y
			}

			roi := (final - initial) / initial
			annualized := math.Pow(final/initial, 1/years) - 1

			return map[string]any{
				"roi_percent":        roi * 100,
				"annualized_percent": annualized * 100,
				"gain":               final - initial,
				"years":              years,
			}, nil
		},
	)
}

// NewSharpeRatioTool returns the tool computing the Sharpe ratio of a return
// series summary.
func NewSharpeRatioTool() *FunctionTool {
	return NewFunctionTool(
		"calculate_sharpe_ratio",
		"Calculate the Sharpe ratio from annual return, risk-free rate and volatility",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"annual_return":  map[string]any{"type": "number", "description": "Annual return as a fraction"},
				"risk_free_rate": map[string]any{"type": "number", "description": "Annual risk-free rate as a fraction, default 0.03"},
				"volatility":     map[string]any{"type": "number", "description": "Annualized volatility as a fraction"},
			},
			"required": []string{"annual_return", "volatility"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			ret, _ := toFloat(args["annual_return"])
			vol, _ := toFloat(args["volatility"])
			if vol <= 0 {
				return nil, NewToolError("calculate_sharpe_ratio", "volatility must be positive", core.CodeValidation)
			}
			riskFree := 0.03
			if rf, ok := toFloat(args["risk_free_rate"]); ok {
				riskFree = rf
			}

			sharpe := (ret - riskFree) / vol
			rating := "poor"
			switch {
			case sharpe >= 2:
				rating = "excellent"
			case sharpe >= 1:
				rating = "good"
			case sharpe >= 0.5:
				rating = "adequate"
			}

			return map[string]any{
				"sharpe_ratio": sharpe,
				"rating":       rating,
			}, nil
		},
	)
}

// NewDiversificationScoreTool returns the tool scoring portfolio
// diversification using the Herfindahl-Hirschman index of the weights.
func NewDiversificationScoreTool() *FunctionTool {
	return NewFunctionTool(
		"calculate_diversification_score",
		"Score portfolio diversification from 0 (concentrated) to 100 (diversified)",
		holdingsSchema,
		func(_ context.Context, args map[string]any) (any, error) {
			holdings, err := holdingsArg(args)
			if err != nil {
				return nil, NewToolError("calculate_diversification_score", err.Error(), core.CodeValidation)
			}

			total := 0.0
			for _, w := range holdings {
				total += w
			}
			hhi := 0.0
			for _, w := range holdings {
				share := w / total
				hhi += share * share
			}

			// HHI ranges from 1/n (even weights) to 1 (single position).
			// Rescale so an equal-weight portfolio of 10+ positions scores
			// near 100 and a single position scores 0.
			score := (1 - hhi) / (1 - 0.1) * 100
			if score > 100 {
				score = 100
			}
			if score < 0 {
				score = 0
			}

			rating := "concentrated"
			if score >= 75 {
				rating = "well diversified"
			} else if score >= 45 {
				rating = "moderately diversified"
			}

			return map[string]any{
				"score":          score,
				"hhi":            hhi,
				"position_count": len(holdings),
				"rating":         rating,
			}, nil
		},
	)
}

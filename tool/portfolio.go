package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/finmesh/core"
)

// holdingsArg normalizes the "holdings" argument (asset name to weight) from
// the loosely typed JSON map. Weights may be fractions (0.4) or percentages
// (40); percentages are detected when the values sum well above 1.
func holdingsArg(args map[string]any) (map[string]float64, error) {
	raw, ok := args["holdings"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("holdings must be a non-empty object of asset weights")
	}
	out := make(map[string]float64, len(raw))
	total := 0.0
	for name, v := range raw {
		w, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("holding %q has non-numeric weight", name)
		}
		if w < 0 {
			return nil, fmt.Errorf("holding %q has negative weight", name)
		}
		out[name] = w
		total += w
	}
	if total > 1.5 {
		for name := range out {
			out[name] /= 100
		}
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func isCashLike(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "cash") || strings.Contains(n, "money market") || strings.Contains(n, "treasury")
}

var holdingsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"holdings": map[string]any{
			"type":        "object",
			"description": "Map of asset name to portfolio weight (fraction or percent)",
		},
	},
	"required": []string{"holdings"},
}

// NewAnalyzePortfolioTool returns the tool assessing portfolio composition,
// concentration and cash allocation.
func NewAnalyzePortfolioTool() *FunctionTool {
	return NewFunctionTool(
		"analyze_portfolio",
		"Analyze portfolio composition, concentration and cash allocation",
		holdingsSchema,
		func(_ context.Context, args map[string]any) (any, error) {
			holdings, err := holdingsArg(args)
			if err != nil {
				return nil, NewToolError("analyze_portfolio", err.Error(), core.CodeValidation)
			}

			var names []string
			maxName, maxWeight := "", 0.0
			cash := 0.0
			for name, w := range holdings {
				names = append(names, name)
				if w > maxWeight {
					maxName, maxWeight = name, w
				}
				if isCashLike(name) {
					cash += w
				}
			}
			sort.Strings(names)

			concentration := "low"
			if maxWeight > 0.5 {
				concentration = "high"
			} else if maxWeight > 0.3 {
				concentration = "moderate"
			}

			var warnings []string
			if maxWeight > 0.4 {
				warnings = append(warnings, fmt.Sprintf("position %q exceeds 40%% of the portfolio", maxName))
			}
			if cash < 0.05 {
				warnings = append(warnings, "cash allocation below 5% leaves little liquidity buffer")
			}
			if len(holdings) < 4 {
				warnings = append(warnings, "fewer than 4 positions limits diversification")
			}

			return map[string]any{
				"positions":          names,
				"position_count":     len(holdings),
				"largest_position":   maxName,
				"largest_weight":     maxWeight,
				"cash_allocation":    cash,
				"concentration_risk": concentration,
				"warnings":           warnings,
			}, nil
		},
	)
}

// assetProfile carries the return and volatility assumptions used by the
// metric tools. Unknown assets fall back to a broad-equity profile.
type assetProfile struct {
	expectedReturn float64
	volatility     float64
	beta           float64
}

var assetProfiles = map[string]assetProfile{
	"stocks":      {0.09, 0.18, 1.0},
	"tech stocks": {0.12, 0.28, 1.4},
	"bonds":       {0.04, 0.06, 0.2},
	"real estate": {0.07, 0.15, 0.7},
	"commodities": {0.05, 0.20, 0.5},
	"gold":        {0.04, 0.16, 0.1},
	"cash":        {0.02, 0.005, 0.0},
	"crypto":      {0.15, 0.60, 1.8},
}

func profileFor(name string) assetProfile {
	n := strings.ToLower(name)
	if p, ok := assetProfiles[n]; ok {
		return p
	}
	for key, p := range assetProfiles {
		if strings.Contains(n, key) {
			return p
		}
	}
	if isCashLike(name) {
		return assetProfiles["cash"]
	}
	return assetProfile{0.08, 0.17, 0.95}
}

// NewPortfolioMetricsTool returns the tool computing weighted expected
// return, volatility and beta for a portfolio.
func NewPortfolioMetricsTool() *FunctionTool {
	return NewFunctionTool(
		"calculate_portfolio_metrics",
		"Calculate expected return, volatility and beta for a portfolio",
		holdingsSchema,
		func(_ context.Context, args map[string]any) (any, error) {
			holdings, err := holdingsArg(args)
			if err != nil {
				return nil, NewToolError("calculate_portfolio_metrics", err.Error(), core.CodeValidation)
			}

			var ret, vol, beta, total float64
			for name, w := range holdings {
				p := profileFor(name)
				ret += w * p.expectedReturn
				vol += w * p.volatility
				beta += w * p.beta
				total += w
			}
			if total > 0 {
				ret /= total
				vol /= total
				beta /= total
			}

			riskLevel := "moderate"
			if vol > 0.22 {
				riskLevel = "high"
			} else if vol < 0.10 {
				riskLevel = "low"
			}

			return map[string]any{
				"expected_annual_return": ret,
				"expected_volatility":    vol,
				"portfolio_beta":         beta,
				"risk_level":             riskLevel,
			}, nil
		},
	)
}

// NewRebalancingTool returns the tool proposing weight adjustments toward a
// target risk profile (conservative, balanced, aggressive).
func NewRebalancingTool() *FunctionTool {
	targets := map[string]map[string]float64{
		"conservative": {"stocks": 0.30, "bonds": 0.50, "cash": 0.20},
		"balanced":     {"stocks": 0.55, "bonds": 0.30, "cash": 0.15},
		"aggressive":   {"stocks": 0.75, "bonds": 0.15, "cash": 0.10},
	}
	return NewFunctionTool(
		"suggest_rebalancing",
		"Suggest portfolio rebalancing moves toward a target risk profile",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"holdings": map[string]any{
					"type":        "object",
					"description": "Map of asset name to portfolio weight",
				},
				"target_profile": map[string]any{
					"type":        "string",
					"description": "One of conservative, balanced, aggressive",
				},
			},
			"required": []string{"holdings"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			holdings, err := holdingsArg(args)
			if err != nil {
				return nil, NewToolError("suggest_rebalancing", err.Error(), core.CodeValidation)
			}
			profile, _ := args["target_profile"].(string)
			profile = strings.ToLower(profile)
			if profile == "" {
				profile = "balanced"
			}
			target, ok := targets[profile]
			if !ok {
				return nil, NewToolError("suggest_rebalancing",
					fmt.Sprintf("unknown target profile %q", profile), core.CodeValidation)
			}

			// Bucket current holdings into the coarse classes the targets
			// use, then diff against the target mix.
			current := map[string]float64{"stocks": 0, "bonds": 0, "cash": 0}
			for name, w := range holdings {
				n := strings.ToLower(name)
				switch {
				case isCashLike(name):
					current["cash"] += w
				case strings.Contains(n, "bond") || strings.Contains(n, "fixed income"):
					current["bonds"] += w
				default:
					current["stocks"] += w
				}
			}

			var moves []map[string]any
			for _, class := range []string{"stocks", "bonds", "cash"} {
				diff := target[class] - current[class]
				if diff > 0.03 {
					moves = append(moves, map[string]any{
						"asset_class": class,
						"action":      "increase",
						"by":          diff,
					})
				} else if diff < -0.03 {
					moves = append(moves, map[string]any{
						"asset_class": class,
						"action":      "reduce",
						"by":          -diff,
					})
				}
			}

			return map[string]any{
				"target_profile":     profile,
				"current_allocation": current,
				"target_allocation":  target,
				"moves":              moves,
				"already_balanced":   len(moves) == 0,
			}, nil
		},
	)
}

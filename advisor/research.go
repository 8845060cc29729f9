package advisor

import (
	"fmt"
	"strings"

	"github.com/hupe1980/finmesh/agent"
	"github.com/hupe1980/finmesh/core"
)

// Default watchlist used when the session carries no user symbols.
var defaultSymbols = []string{"AAPL", "MSFT", "GOOGL"}

// watchlist resolves the symbols to research: the user's, when seeded into
// the session, otherwise the default large-cap set.
func watchlist(inv *core.InvocationContext) []string {
	v, ok := inv.GetState("user.symbols")
	if !ok {
		return defaultSymbols
	}
	switch s := v.(type) {
	case []string:
		if len(s) > 0 {
			return s
		}
	case []any:
		var out []string
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultSymbols
}

// NewMarketResearcher returns the leaf agent collecting quotes and trend
// data for the watchlist. It writes, per symbol, the quote payload under
// "quote.<symbol>" plus an aggregate "summary" line.
func NewMarketResearcher() *agent.LeafAgent {
	return agent.NewLeafAgent(
		"MarketResearcher",
		"Collects current quotes and price trends for the watchlist",
		func(inv *core.InvocationContext) (*core.TerminalOutput, error) {
			symbols := watchlist(inv)
			var lines []string
			failed := 0
			for _, sym := range symbols {
				res := inv.CallTool("get_stock_price", map[string]any{"symbol": sym})
				if !res.OK() {
					failed++
					continue
				}
				payload, _ := res.Payload.(map[string]any)
				if err := inv.SetState("quote."+strings.ToLower(sym), payload); err != nil {
					return nil, err
				}
				lines = append(lines, fmt.Sprintf("%s at %.2f (%+.2f%%)",
					sym, num(payload["price"]), num(payload["change_percent"])))

				hist := inv.CallTool("get_stock_history", map[string]any{"symbol": sym, "period": "1M"})
				if hist.OK() {
					hp, _ := hist.Payload.(map[string]any)
					if err := inv.SetState("trend."+strings.ToLower(sym), hp["period_return"]); err != nil {
						return nil, err
					}
				}
			}
			if failed == len(symbols) {
				return nil, fmt.Errorf("no market data available for any watched symbol")
			}
			if err := inv.SetState("summary", strings.Join(lines, "; ")); err != nil {
				return nil, err
			}
			return nil, nil
		},
	)
}

// NewNewsResearcher returns the leaf agent summarizing news sentiment for
// the seeding query.
func NewNewsResearcher() *agent.LeafAgent {
	return agent.NewLeafAgent(
		"NewsResearcher",
		"Searches market news and distills overall sentiment",
		func(inv *core.InvocationContext) (*core.TerminalOutput, error) {
			query := inv.Query
			if query == "" {
				query = "markets"
			}
			res := inv.CallTool("search_market_news", map[string]any{"query": query})
			if !res.OK() {
				return nil, fmt.Errorf("news search failed: %s", res.ErrorDetail)
			}
			payload, _ := res.Payload.(map[string]any)
			if err := inv.SetState("sentiment", payload["overall_sentiment"]); err != nil {
				return nil, err
			}
			if err := inv.SetState("headlines", payload["headlines"]); err != nil {
				return nil, err
			}
			if err := inv.SetState("summary",
				fmt.Sprintf("news sentiment is %v", payload["overall_sentiment"])); err != nil {
				return nil, err
			}
			return nil, nil
		},
	)
}

// NewEconResearcher returns the leaf agent capturing the macro picture:
// index levels, volatility and sector rotation.
func NewEconResearcher() *agent.LeafAgent {
	return agent.NewLeafAgent(
		"EconResearcher",
		"Captures macro conditions from the market summary",
		func(inv *core.InvocationContext) (*core.TerminalOutput, error) {
			res := inv.CallTool("get_market_summary", nil)
			if !res.OK() {
				return nil, fmt.Errorf("market summary unavailable: %s", res.ErrorDetail)
			}
			payload, _ := res.Payload.(map[string]any)
			if err := inv.SetState("indices", payload["indices"]); err != nil {
				return nil, err
			}
			if err := inv.SetState("volatility", payload["volatility_index"]); err != nil {
				return nil, err
			}
			if err := inv.SetState("sectors", payload["sector_performance"]); err != nil {
				return nil, err
			}
			if err := inv.SetState("summary", fmt.Sprintf("market sentiment %v, VIX %.2f",
				payload["market_sentiment"], num(payload["volatility_index"]))); err != nil {
				return nil, err
			}
			return nil, nil
		},
	)
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

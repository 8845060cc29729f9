package tool

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// quote is the simulated market snapshot for one symbol. The table mirrors a
// small large-cap universe; unknown symbols get deterministic synthetic data
// so pipelines stay reproducible without a market data subscription.
type quote struct {
	price     float64
	change    float64
	changePct float64
	volume    int64
}

var mockQuotes = map[string]quote{
	"AAPL":  {178.50, 2.35, 1.33, 58_000_000},
	"GOOGL": {141.20, -0.80, -0.56, 22_000_000},
	"MSFT":  {378.90, 4.20, 1.12, 25_000_000},
	"AMZN":  {178.25, 1.50, 0.85, 45_000_000},
	"NVDA":  {495.50, 12.30, 2.55, 52_000_000},
	"TSLA":  {248.75, -5.25, -2.07, 98_000_000},
	"META":  {505.30, 8.40, 1.69, 18_000_000},
	"JPM":   {195.80, 1.20, 0.62, 12_000_000},
	"V":     {280.45, 2.10, 0.75, 8_000_000},
	"JNJ":   {158.30, -0.45, -0.28, 7_500_000},
}

// syntheticQuote derives a stable pseudo-quote from the symbol so repeated
// calls (and tests) see consistent data.
func syntheticQuote(symbol string) quote {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	seed := h.Sum32()
	price := 50 + float64(seed%45000)/100
	change := float64(int32(seed%2000)-1000) / 100
	return quote{
		price:     price,
		change:    change,
		changePct: change / price * 100,
		volume:    int64(1_000_000 + seed%99_000_000),
	}
}

// NewStockPriceTool returns the tool reporting current price and basic info
// for a ticker symbol.
func NewStockPriceTool() *FunctionTool {
	return NewFunctionTool(
		"get_stock_price",
		"Get current stock price and basic info for a given ticker symbol",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{"type": "string", "description": "Stock ticker symbol, e.g. AAPL"},
			},
			"required": []string{"symbol"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			symbol := strings.ToUpper(args["symbol"].(string))
			q, known := mockQuotes[symbol]
			if !known {
				q = syntheticQuote(symbol)
			}
			payload := map[string]any{
				"symbol":         symbol,
				"price":          q.price,
				"change":         q.change,
				"change_percent": q.changePct,
				"volume":         q.volume,
				"timestamp":      time.Now().UTC().Format(time.RFC3339),
			}
			if !known {
				payload["note"] = "data simulated for demonstration"
			}
			return payload, nil
		},
	)
}

// NewMarketSummaryTool returns the tool reporting major indices, sector
// performance and aggregate sentiment.
func NewMarketSummaryTool() *FunctionTool {
	return NewFunctionTool(
		"get_market_summary",
		"Get overall market summary including major indices and sentiment",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ context.Context, _ map[string]any) (any, error) {
			return map[string]any{
				"indices": map[string]any{
					"S&P 500":      map[string]any{"value": 5021.84, "change_pct": 0.51, "status": "up"},
					"NASDAQ":       map[string]any{"value": 15990.66, "change_pct": 0.92, "status": "up"},
					"DOW":          map[string]any{"value": 38996.39, "change_pct": -0.12, "status": "down"},
					"Russell 2000": map[string]any{"value": 2052.30, "change_pct": 0.61, "status": "up"},
				},
				"market_sentiment": "bullish",
				"volatility_index": 13.45,
				"fear_greed_index": 68,
				"sector_performance": map[string]any{
					"Technology": 1.25,
					"Healthcare": 0.45,
					"Financials": 0.32,
					"Energy":     -0.75,
					"Utilities":  -0.22,
				},
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}, nil
		},
	)
}

// NewStockHistoryTool returns the tool producing a synthetic price history
// for trend analysis over a requested period (1W, 1M, 3M, 1Y).
func NewStockHistoryTool() *FunctionTool {
	periodDays := map[string]int{"1W": 5, "1M": 21, "3M": 63, "1Y": 252}
	return NewFunctionTool(
		"get_stock_history",
		"Get historical price data for a stock over a period (1W, 1M, 3M, 1Y)",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{"type": "string"},
				"period": map[string]any{"type": "string", "description": "One of 1W, 1M, 3M, 1Y"},
			},
			"required": []string{"symbol"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			symbol := strings.ToUpper(args["symbol"].(string))
			period, _ := args["period"].(string)
			if period == "" {
				period = "1M"
			}
			days, ok := periodDays[strings.ToUpper(period)]
			if !ok {
				return nil, fmt.Errorf("unsupported period %q", period)
			}

			q, known := mockQuotes[symbol]
			if !known {
				q = syntheticQuote(symbol)
			}

			// Walk backwards from the current price along a deterministic
			// drift so the series endpoints stay consistent with the quote.
			prices := make([]float64, days)
			prices[days-1] = q.price
			drift := q.changePct / 100 / 5
			for i := days - 2; i >= 0; i-- {
				wiggle := float64((i*31)%7-3) / 500
				prices[i] = prices[i+1] / (1 + drift + wiggle)
			}

			high, low := prices[0], prices[0]
			for _, p := range prices {
				if p > high {
					high = p
				}
				if p < low {
					low = p
				}
			}

			return map[string]any{
				"symbol":        symbol,
				"period":        period,
				"prices":        prices,
				"period_return": (prices[days-1] - prices[0]) / prices[0] * 100,
				"high":          high,
				"low":           low,
			}, nil
		},
	)
}

// NewMarketNewsTool returns the tool surfacing recent headlines with a coarse
// sentiment label for a search query.
func NewMarketNewsTool() *FunctionTool {
	headlines := []map[string]any{
		{"headline": "Fed signals rates to stay higher for longer", "sentiment": "bearish", "topic": "rates"},
		{"headline": "Megacap tech earnings beat expectations", "sentiment": "bullish", "topic": "technology"},
		{"headline": "Energy sector lags as crude retreats", "sentiment": "bearish", "topic": "energy"},
		{"headline": "Consumer spending stays resilient into the quarter", "sentiment": "bullish", "topic": "consumer"},
		{"headline": "Volatility index near multi-year lows", "sentiment": "neutral", "topic": "volatility"},
	}
	return NewFunctionTool(
		"search_market_news",
		"Search recent market news and summarize sentiment for a query",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			query := strings.ToLower(args["query"].(string))
			var matched []map[string]any
			bullish, bearish := 0, 0
			for _, h := range headlines {
				topic := h["topic"].(string)
				if query == "" || strings.Contains(query, topic) || strings.Contains(topic, query) {
					matched = append(matched, h)
				}
			}
			if len(matched) == 0 {
				matched = headlines
			}
			for _, h := range matched {
				switch h["sentiment"] {
				case "bullish":
					bullish++
				case "bearish":
					bearish++
				}
			}
			overall := "neutral"
			if bullish > bearish {
				overall = "bullish"
			} else if bearish > bullish {
				overall = "bearish"
			}
			return map[string]any{
				"query":             args["query"],
				"headlines":         matched,
				"overall_sentiment": overall,
			}, nil
		},
	)
}

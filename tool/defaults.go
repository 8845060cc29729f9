package tool

// Defaults returns the full built-in financial tool set, ready to be
// registered with a gateway.
func Defaults() []Tool {
	return []Tool{
		NewStockPriceTool(),
		NewMarketSummaryTool(),
		NewStockHistoryTool(),
		NewMarketNewsTool(),
		NewAnalyzePortfolioTool(),
		NewPortfolioMetricsTool(),
		NewRebalancingTool(),
		NewVaRTool(),
		NewRiskProfileTool(),
		NewStressTestTool(),
		NewCompoundInterestTool(),
		NewROITool(),
		NewSharpeRatioTool(),
		NewDiversificationScoreTool(),
	}
}

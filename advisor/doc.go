// Package advisor assembles the financial decision pipeline: concurrent
// research over market data, news and macro conditions; sequential risk,
// portfolio and performance analysis; and a generate/critique refinement
// loop that converges on a final recommendation.
//
// Every worker is an ordinary agent from the agent package wired to the
// built-in financial tools through the gateway; the recommendation stage can
// run model-backed or fall back to deterministic heuristics when no model is
// configured.
package advisor

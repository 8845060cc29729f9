package finmesh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/finmesh/tool"
)

func TestAdvisor_Ask(t *testing.T) {
	advisor, err := New()
	require.NoError(t, err)

	report, err := advisor.Ask(context.Background(),
		"u-1", "I hold 50% stocks, 40% bonds, 10% cash. Thoughts?")
	require.NoError(t, err)

	assert.Contains(t, report, "Advisory Report")
	assert.Contains(t, report, "Recommendation:")
}

func TestAdvisor_RegisterTool(t *testing.T) {
	advisor, err := New()
	require.NoError(t, err)

	custom := tool.NewFunctionTool("echo_symbol", "Echoes a ticker symbol",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{"type": "string"},
			},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"symbol": args["symbol"]}, nil
		},
	)
	require.NoError(t, advisor.RegisterTool(custom))

	// Registering the same name twice is rejected.
	assert.Error(t, advisor.RegisterTool(custom))

	names := make([]string, 0)
	for _, registered := range advisor.Gateway().Tools() {
		names = append(names, registered.Name())
	}
	assert.Contains(t, names, "echo_symbol")
	assert.Contains(t, names, "get_stock_price")
}

func TestAdvisor_Describe(t *testing.T) {
	advisor, err := New()
	require.NoError(t, err)
	assert.Equal(t, "finmesh-advisor", advisor.Describe().Name)
}

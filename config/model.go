package config

import (
	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/finmesh/model"
	"github.com/hupe1980/finmesh/model/anthropic"
	"github.com/hupe1980/finmesh/model/openai"
)

// NewModel builds the configured language model. An empty provider returns
// nil, which selects the deterministic heuristic recommendation agents.
func (m ModelConfig) NewModel() model.Model {
	switch m.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if m.Name != "" {
				o.Model = m.Name
			}
			if m.Temperature > 0 {
				o.Temperature = m.Temperature
			}
			if m.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(m.MaxTokens)
			}
		})
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if m.Name != "" {
				o.Model = sdkanthropic.Model(m.Name)
			}
			if m.Temperature > 0 {
				o.Temperature = m.Temperature
			}
			if m.MaxTokens > 0 {
				o.MaxTokens = int64(m.MaxTokens)
			}
		})
	default:
		return nil
	}
}

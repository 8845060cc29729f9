// Package model defines the normalized language model abstraction used by
// model-backed agents, decoupling agent logic from provider SDKs. Concrete
// adapters live in the openai and anthropic subpackages; tests use MockModel.
package model

import (
	"context"
	"fmt"
	"sync"
)

// Request is a single-turn generation request. Agents render their prompt
// from session state before calling, so the abstraction stays stateless.
type Request struct {
	// System is the optional system instruction.
	System string
	// Prompt is the user-turn content.
	Prompt string
	// Temperature overrides the adapter default when > 0.
	Temperature float64
	// MaxTokens overrides the adapter default when > 0.
	MaxTokens int64
}

// Response carries the generated text and the provider's finish reason.
type Response struct {
	Text         string
	FinishReason string
}

// Info describes a model implementation for logs and capability descriptors.
type Info struct {
	Name     string
	Provider string
}

// Model is the provider-neutral generation contract.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Info() Info
}

// MockModel is a scripted Model for tests and offline runs. Responses are
// consumed in order; when the script runs out the last entry repeats. A
// GenerateFunc takes precedence over the script when set.
type MockModel struct {
	mu        sync.Mutex
	responses []string
	calls     []Request
	next      int

	// GenerateFunc, when non-nil, fully replaces the scripted behavior.
	GenerateFunc func(ctx context.Context, req Request) (*Response, error)
}

// NewMockModel creates a mock that replays the given responses in order.
func NewMockModel(responses ...string) *MockModel {
	return &MockModel{responses: responses}
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.GenerateFunc
	var text string
	if fn == nil {
		if len(m.responses) == 0 {
			m.mu.Unlock()
			return nil, fmt.Errorf("mock model has no scripted responses")
		}
		text = m.responses[m.next]
		if m.next < len(m.responses)-1 {
			m.next++
		}
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &Response{Text: text, FinishReason: "stop"}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return Info{Name: "mock", Provider: "mock"} }

// Calls returns a copy of every request seen so far.
func (m *MockModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/model"
)

func TestModelAgent_RendersPromptAndStagesOutput(t *testing.T) {
	mock := model.NewMockModel("the market looks stable")
	a, err := NewModelAgent(ModelAgentConfig{
		Name:      "summarizer",
		Model:     mock,
		System:    "You are a market analyst.",
		Prompt:    `Summarize for query {{.query}}: {{index .state "research.market.trend"}}`,
		OutputKey: "summary",
	})
	require.NoError(t, err)

	inv, sess := newTestInvocation(t)
	sess.Set("research.market.trend", "upward", "setup")

	child := inv.ForChild(core.ChildOptions{Agent: a.Info(), Namespace: "analysis"})
	ev, err := a.Run(child)
	require.NoError(t, err)
	assert.Equal(t, "the market looks stable", ev.StateDelta["analysis.summary"])

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "You are a market analyst.", calls[0].System)
	assert.Contains(t, calls[0].Prompt, "test query")
	assert.Contains(t, calls[0].Prompt, "upward")
}

func TestModelAgent_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	mock := &model.MockModel{
		GenerateFunc: func(_ context.Context, _ model.Request) (*model.Response, error) {
			attempts++
			if attempts < 3 {
				return nil, core.Transient(errors.New("rate limited"))
			}
			return &model.Response{Text: "ok"}, nil
		},
	}
	a, err := NewModelAgent(ModelAgentConfig{
		Name:      "retrying",
		Model:     mock,
		Prompt:    "p",
		OutputKey: "out",
	})
	require.NoError(t, err)

	inv, _ := newTestInvocation(t)
	ev, err := a.Run(inv)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "ok", ev.StateDelta["out"])
}

func TestModelAgent_PermanentFailureNotRetried(t *testing.T) {
	attempts := 0
	mock := &model.MockModel{
		GenerateFunc: func(_ context.Context, _ model.Request) (*model.Response, error) {
			attempts++
			return nil, errors.New("prompt rejected")
		},
	}
	a, err := NewModelAgent(ModelAgentConfig{Name: "m", Model: mock, Prompt: "p", OutputKey: "out"})
	require.NoError(t, err)

	inv, _ := newTestInvocation(t)
	_, err = a.Run(inv)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestModelAgent_ExtractHook(t *testing.T) {
	mock := model.NewMockModel("APPROVED: allocation fine")
	a, err := NewModelAgent(ModelAgentConfig{
		Name:      "critic",
		Model:     mock,
		Prompt:    "p",
		OutputKey: "critique",
		Extract: func(inv *core.InvocationContext, text string) error {
			return inv.SetState("approved", len(text) > 0)
		},
	})
	require.NoError(t, err)

	inv, _ := newTestInvocation(t)
	child := inv.ForChild(core.ChildOptions{Agent: a.Info(), Namespace: "rec"})
	ev, err := a.Run(child)
	require.NoError(t, err)
	assert.Equal(t, "APPROVED: allocation fine", ev.StateDelta["rec.critique"])
	assert.Equal(t, true, ev.StateDelta["rec.approved"])
}

func TestModelAgent_ConstructionErrors(t *testing.T) {
	mock := model.NewMockModel("x")
	_, err := NewModelAgent(ModelAgentConfig{Model: mock, Prompt: "p", OutputKey: "k"})
	assert.Error(t, err)
	_, err = NewModelAgent(ModelAgentConfig{Name: "a", Prompt: "p", OutputKey: "k"})
	assert.Error(t, err)
	_, err = NewModelAgent(ModelAgentConfig{Name: "a", Model: mock, OutputKey: "k"})
	assert.Error(t, err)
	_, err = NewModelAgent(ModelAgentConfig{Name: "a", Model: mock, Prompt: "p"})
	assert.Error(t, err)
}

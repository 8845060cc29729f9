package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/internal/util"
	"github.com/hupe1980/finmesh/model"
)

// ModelAgent is a leaf backed by a language model. Its prompt is a template
// rendered against the current state view (plus the seeding query), the
// model's text lands under OutputKey, and an optional Extract hook pulls
// additional structured state out of the response.
//
// Template data shape:
//
//	{{.query}}             the pipeline's seeding query
//	{{index .state "k"}}   any state key, namespaced form included
type ModelAgent struct {
	BaseAgent
	model      model.Model
	system     string
	promptTmpl string
	outputKey  string
	extract    Extractor
	maxRetries int
}

// Extractor post-processes a model response, staging any derived state on
// the invocation context. Returning an error fails the agent run.
type Extractor func(inv *core.InvocationContext, text string) error

// ModelAgentConfig parameterizes NewModelAgent.
type ModelAgentConfig struct {
	Name        string
	Description string
	Model       model.Model
	// System is the static system instruction.
	System string
	// Prompt is the user-turn template rendered per run.
	Prompt string
	// OutputKey receives the raw response text (namespaced by the owning
	// combinator's scoping).
	OutputKey string
	// Extract optionally derives further state from the response.
	Extract Extractor
	// MaxRetries bounds transient-failure retries of the model call.
	// Default 2 retries after the first attempt.
	MaxRetries int
}

// NewModelAgent creates a model-backed leaf agent.
func NewModelAgent(cfg ModelAgentConfig) (*ModelAgent, error) {
	if cfg.Name == "" {
		return nil, errors.New("model agent requires a name")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("model agent %s requires a model", cfg.Name)
	}
	if cfg.Prompt == "" {
		return nil, fmt.Errorf("model agent %s requires a prompt template", cfg.Name)
	}
	if cfg.OutputKey == "" {
		return nil, fmt.Errorf("model agent %s requires an output key", cfg.Name)
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 2
	}
	a := &ModelAgent{
		BaseAgent:  NewBaseAgent(cfg.Name, "leaf"),
		model:      cfg.Model,
		system:     cfg.System,
		promptTmpl: cfg.Prompt,
		outputKey:  cfg.OutputKey,
		extract:    cfg.Extract,
		maxRetries: retries,
	}
	if cfg.Description != "" {
		a.SetDescription(cfg.Description)
	}
	return a, nil
}

// Run implements core.Agent.
func (a *ModelAgent) Run(inv *core.InvocationContext) (*core.Event, error) {
	if err := inv.Err(); err != nil {
		return nil, err
	}

	prompt, err := util.RenderTemplate(a.promptTmpl, map[string]any{
		"query": inv.Query,
		"state": map[string]any(inv.View()),
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: render prompt: %w", a.Name(), err)
	}

	op := func() (*model.Response, error) {
		resp, err := a.model.Generate(inv.Context, model.Request{
			System: a.system,
			Prompt: prompt,
		})
		if err != nil && !core.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	resp, err := backoff.Retry(inv.Context, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(a.maxRetries+1)),
	)
	if err != nil {
		if inv.Err() != nil && errors.Is(inv.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("agent %s: %w", a.Name(), inv.Err())
		}
		return nil, fmt.Errorf("agent %s: model call failed: %w", a.Name(), err)
	}

	if err := inv.SetState(a.outputKey, resp.Text); err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.Name(), err)
	}
	if a.extract != nil {
		if err := a.extract(inv, resp.Text); err != nil {
			return nil, fmt.Errorf("agent %s: extract: %w", a.Name(), err)
		}
	}

	ev := inv.BuildEvent()
	return &ev, nil
}

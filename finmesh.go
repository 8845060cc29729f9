// Package finmesh provides a high-level façade over the advisory pipeline:
// the orchestration engine, its stores (sessions, user memory, transcript
// archive) and the financial tool gateway. Most applications interact with
// this package by:
//  1. Creating an Advisor via New() (optionally overriding the defaults)
//  2. Asking questions with Ask() or the lower-level Run()
//  3. Inspecting transcripts through the archive when needed
//
// The façade delegates orchestration to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a language model, durable
// stores and a structured logger.
package finmesh

import (
	"context"

	"github.com/hupe1980/finmesh/engine"
	"github.com/hupe1980/finmesh/gateway"
	"github.com/hupe1980/finmesh/tool"
)

// Advisor is the high-level façade over the engine and its collaborators.
type Advisor struct {
	engine *engine.Engine
}

// New creates an Advisor. Options pass through to the engine; any collaborator
// left unset gets an in-memory default and the built-in financial tool set.
func New(optFns ...func(o *engine.Options)) (*Advisor, error) {
	e, err := engine.New(optFns...)
	if err != nil {
		return nil, err
	}
	return &Advisor{engine: e}, nil
}

// Ask runs the full pipeline for a single question and returns the advisory
// report text.
func (a *Advisor) Ask(ctx context.Context, userID, question string) (string, error) {
	res, err := a.engine.Run(ctx, engine.Query{UserID: userID, Text: question})
	if err != nil {
		return "", err
	}
	return res.Output.Text, nil
}

// Run exposes the engine's full result for callers that need the transcript
// or session status.
func (a *Advisor) Run(ctx context.Context, q engine.Query) (*engine.Result, error) {
	return a.engine.Run(ctx, q)
}

// RegisterTool adds a custom tool to the gateway alongside the built-ins.
func (a *Advisor) RegisterTool(t tool.Tool) error {
	return a.engine.Gateway().Register(t)
}

// Gateway exposes the underlying tool gateway.
func (a *Advisor) Gateway() *gateway.Gateway { return a.engine.Gateway() }

// Engine exposes the underlying engine, mainly for the a2a adapter.
func (a *Advisor) Engine() *engine.Engine { return a.engine }

// Describe returns the engine capability descriptor.
func (a *Advisor) Describe() engine.Capability { return a.engine.Describe() }

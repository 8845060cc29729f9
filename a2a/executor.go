package a2a

import (
	"context"
	"fmt"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/engine"
)

// Executor bridges the engine to a2asrv.AgentExecutor. Each task runs one
// full pipeline; the advisory report is emitted as a single artifact
// followed by a terminal status event.
type Executor struct {
	engine *engine.Engine
}

// NewExecutor wraps the engine for the A2A server runtime.
func NewExecutor(e *engine.Engine) *Executor {
	return &Executor{engine: e}
}

// Execute runs the pipeline for the request's message and translates the
// outcome into A2A events on the queue. Pipeline failures are reported as
// failed task status, not as an Execute error; transport-level write
// failures are the only errors returned.
func (x *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	msg := reqCtx.Message
	if msg == nil {
		return fmt.Errorf("message not provided")
	}

	text := messageText(msg)
	if text == "" {
		return fmt.Errorf("message carries no text parts")
	}

	userID := "default"
	if msg.Metadata != nil {
		if uid, ok := msg.Metadata["user_id"].(string); ok && uid != "" {
			userID = uid
		}
	}

	if reqCtx.StoredTask == nil {
		if err := queue.Write(ctx, a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateSubmitted, nil)); err != nil {
			return fmt.Errorf("write submitted event: %w", err)
		}
	}
	if err := queue.Write(ctx, a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil)); err != nil {
		return fmt.Errorf("write working event: %w", err)
	}

	res, err := x.engine.Run(ctx, engine.Query{UserID: userID, Text: text})
	if err != nil {
		failMsg := a2a.NewMessageForTask(a2a.MessageRoleAgent, reqCtx, a2a.TextPart{Text: err.Error()})
		failed := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateFailed, failMsg)
		failed.Final = true
		if writeErr := queue.Write(ctx, failed); writeErr != nil {
			return fmt.Errorf("write failed event: %w (run error: %w)", writeErr, err)
		}
		return nil
	}

	artifact := a2a.NewArtifactEvent(reqCtx, a2a.TextPart{Text: res.Output.Text})
	artifact.LastChunk = true
	artifact.Metadata = map[string]any{
		"session_id": res.SessionID,
		"status":     string(res.Status),
	}
	if res.Status == core.SessionTimedOut {
		// A partial report still completes the task; flag it for the client.
		artifact.Metadata["partial"] = true
	}
	if err := queue.Write(ctx, artifact); err != nil {
		return fmt.Errorf("write artifact event: %w", err)
	}

	done := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCompleted, nil)
	done.Final = true
	return queue.Write(ctx, done)
}

// Cancel publishes a canceled terminal status. Pipeline work stops through
// context cancellation; there is no separate kill path.
func (x *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	ev := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCanceled, nil)
	ev.Final = true
	return queue.Write(ctx, ev)
}

// messageText concatenates the text parts of a message.
func messageText(msg *a2a.Message) string {
	var sb strings.Builder
	for _, part := range msg.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

var _ a2asrv.AgentExecutor = (*Executor)(nil)

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/raphaelgruber/biocurator-go/internal/normalize"
	"github.com/raphaelgruber/biocurator-go/internal/platform"
)

// DefaultPollInterval is the pause between two run status fetches.
const DefaultPollInterval = 5 * time.Second

// Payload is the answer to one prompt: either the arguments of the tool call
// the assistant requested, or the text of its reply.
type Payload struct {
	Structured *normalize.Value
	Text       string
}

// Render returns the normalized output for the payload.
func (p Payload) Render() (string, error) {
	if p.Structured != nil {
		return normalize.Structured(*p.Structured)
	}
	return normalize.Text(p.Text), nil
}

// runAction is what the poll loop does next for an observed run.
type runAction int

const (
	actionWait runAction = iota
	actionToolCall
	actionCollect
	actionFail
	actionAbandon
)

// decideRun maps an observed run onto the next poll loop action.
func decideRun(run platform.Run) runAction {
	switch run.Status {
	case platform.RunStatusRequiresAction:
		return actionToolCall
	case platform.RunStatusCompleted:
		return actionCollect
	case platform.RunStatusFailed:
		if run.LastError != nil {
			return actionFail
		}
		return actionAbandon
	case platform.RunStatusCancelled, platform.RunStatusExpired, platform.RunStatusIncomplete:
		return actionAbandon
	default:
		return actionWait
	}
}

// Orchestrator submits prompts to an assistant and polls the resulting runs.
type Orchestrator struct {
	platform   RunPlatform
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	newBackOff func() backoff.BackOff
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock sets the time source used to measure run timeouts.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleep sets the function that pauses between polls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) OrchestratorOption {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithPollInterval sets a constant pause between polls.
func WithPollInterval(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(d) }
	}
}

// WithBackOff sets the poll schedule. A schedule that returns backoff.Stop
// ends polling as if the run had timed out.
func WithBackOff(newBackOff func() backoff.BackOff) OrchestratorOption {
	return func(o *Orchestrator) { o.newBackOff = newBackOff }
}

// NewOrchestrator creates an orchestrator polling every DefaultPollInterval.
func NewOrchestrator(p RunPlatform, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		platform: p,
		now:      time.Now,
		sleep:    sleepContext,
	}
	WithPollInterval(DefaultPollInterval)(o)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunPrompt posts prompt to the conversation, starts a run and waits for its
// outcome. A tool call returns the parsed call arguments without reading
// messages; a completed run returns the assistant's reply.
func (o *Orchestrator) RunPrompt(ctx context.Context, conversationID, assistantID, prompt string, timeout time.Duration) (Payload, error) {
	if err := o.platform.PostMessage(ctx, conversationID, prompt); err != nil {
		return Payload{}, err
	}

	run, err := o.platform.CreateRun(ctx, conversationID, assistantID)
	if err != nil {
		return Payload{}, err
	}
	start := o.now()
	slog.Debug("run created", "run", run.ID, "conversation", conversationID)

	schedule := o.newBackOff()
	schedule.Reset()

	for {
		if elapsed := o.now().Sub(start); elapsed >= timeout {
			logRunDiagnostics("run timed out", run, timeout)
			return Payload{}, fmt.Errorf("%w: run %s exceeded %s", ErrRunIncomplete, run.ID, timeout)
		}

		run, err = o.platform.GetRun(ctx, conversationID, run.ID)
		if err != nil {
			return Payload{}, err
		}

		switch decideRun(run) {
		case actionToolCall:
			return toolCallPayload(run)
		case actionCollect:
			slog.Debug("run completed", "run", run.ID)
			return o.collectReply(ctx, conversationID, run.ID)
		case actionFail:
			slog.Warn("run failed", "run", run.ID, "last_error", run.LastError.String())
			return Payload{}, &RunFailedError{RunID: run.ID, Code: run.LastError.Code, Message: run.LastError.Message}
		case actionAbandon:
			logRunDiagnostics("run ended without a result", run, timeout)
			return Payload{}, fmt.Errorf("%w: run %s is %s", ErrRunIncomplete, run.ID, run.Status)
		}

		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			logRunDiagnostics("run poll schedule exhausted", run, timeout)
			return Payload{}, fmt.Errorf("%w: run %s still %s", ErrRunIncomplete, run.ID, run.Status)
		}
		if err := o.sleep(ctx, wait); err != nil {
			return Payload{}, err
		}
	}
}

func toolCallPayload(run platform.Run) (Payload, error) {
	if len(run.ToolCalls) == 0 {
		return Payload{}, fmt.Errorf("%w: run %s requires action without tool calls", ErrRunIncomplete, run.ID)
	}
	v, err := normalize.Parse([]byte(run.ToolCalls[0].Arguments))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: parse arguments of tool call %s: %v", ErrRunIncomplete, run.ToolCalls[0].Name, err)
	}
	return Payload{Structured: &v}, nil
}

// collectReply returns the first assistant-role message of the newest-first
// listing, which is not necessarily the message at position 1. A conversation
// holding only the prompt has no reply yet.
func (o *Orchestrator) collectReply(ctx context.Context, conversationID, runID string) (Payload, error) {
	msgs, err := o.platform.ListMessages(ctx, conversationID)
	if err != nil {
		return Payload{}, err
	}
	if len(msgs) <= 1 {
		return Payload{}, fmt.Errorf("%w: run %s completed with %d message(s)", ErrRunIncomplete, runID, len(msgs))
	}
	for _, m := range msgs {
		if m.Role == platform.RoleAssistant {
			return Payload{Text: m.Text}, nil
		}
	}
	return Payload{}, fmt.Errorf("%w: run %s completed without an assistant reply", ErrRunIncomplete, runID)
}

func logRunDiagnostics(msg string, run platform.Run, timeout time.Duration) {
	attrs := []any{
		"run", run.ID,
		"status", run.Status,
		"timeout", timeout,
		"cancelled_at", formatTime(run.CancelledAt),
		"completed_at", formatTime(run.CompletedAt),
		"failed_at", formatTime(run.FailedAt),
	}
	if run.LastError != nil {
		attrs = append(attrs, "last_error", run.LastError.String())
	}
	slog.Warn(msg, attrs...)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format(time.RFC3339)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

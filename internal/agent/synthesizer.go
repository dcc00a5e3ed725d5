package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/vidya/internal/observability"
	"github.com/rahul/vidya/internal/store"
	"github.com/tmc/langchaingo/llms"
)

// TraceEntry is one line of the structured execution trace returned with
// every reply.
type TraceEntry struct {
	Task       string `json:"task"`
	Capability string `json:"capability"`
	Status     string `json:"status"`
}

// Reply is the user-facing outcome of one turn.
type Reply struct {
	Response   string       `json:"response"`
	PlanTrace  []TraceEntry `json:"plan_trace"`
	UsedMemory bool         `json:"used_memory"`
}

// Synthesizer merges task outputs and conversation memory into one answer.
type Synthesizer struct {
	Model  llms.Model
	Logger *observability.Logger
}

func NewSynthesizer(model llms.Model, logger *observability.Logger) *Synthesizer {
	return &Synthesizer{Model: model, Logger: logger}
}

const maxOutputChars = 4000

// Synthesize produces the reply for one executed plan and appends the turn
// to the session history. When every task failed or was skipped the
// fallback message is deterministic: no point compounding failures with
// another model call.
func (s *Synthesizer) Synthesize(ctx context.Context, input string, plan *Plan, results []ExecutionResult, session *Session) Reply {
	trace := make([]TraceEntry, 0, len(results))
	var succeeded []ExecutionResult
	var failed []ExecutionResult
	for _, res := range results {
		trace = append(trace, TraceEntry{
			Task:       res.TaskID,
			Capability: res.Capability,
			Status:     string(res.Status),
		})
		switch res.Status {
		case TaskSucceeded:
			succeeded = append(succeeded, res)
		case TaskFailed, TaskSkipped:
			failed = append(failed, res)
		}
	}

	usedMemory := len(session.Turns()) > 0

	var response string
	if len(succeeded) == 0 {
		response = fallbackMessage(failed)
	} else {
		response = s.compose(ctx, input, succeeded, failed, session)
	}

	session.AppendTurn(store.Turn{
		ID:        uuid.NewString(),
		Input:     input,
		PlanID:    plan.ID,
		CreatedAt: time.Now().UTC(),
	})

	return Reply{
		Response:   response,
		PlanTrace:  trace,
		UsedMemory: usedMemory,
	}
}

// compose asks the model for one coherent answer over the task outputs.
// If that call fails, the raw outputs are returned instead: a degraded
// answer beats an error reaching the gateway.
func (s *Synthesizer) compose(ctx context.Context, input string, succeeded, failed []ExecutionResult, session *Session) string {
	var sb strings.Builder
	for _, res := range succeeded {
		out := res.Output
		if len(out) > maxOutputChars {
			out = out[:maxOutputChars] + "\n[truncated]"
		}
		fmt.Fprintf(&sb, "## %s\n%s\n\n", res.Capability, out)
	}
	if len(failed) > 0 {
		sb.WriteString("## incomplete steps\n")
		for _, res := range failed {
			fmt.Fprintf(&sb, "- %s: %s\n", res.Capability, res.Status)
		}
	}

	system := "You are a study companion. Combine the step results below into one clear, " +
		"encouraging answer for the student. Mention any step that did not complete. " +
		"Do not invent results that are not present."

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
	}
	for _, t := range recentTurns(session, 5) {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(t.Input)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(
			fmt.Sprintf("REQUEST: %s\n\nSTEP RESULTS:\n%s", input, sb.String()),
		)},
	})

	resp, err := s.Model.GenerateContent(ctx, messages)
	if err != nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		var parts []string
		for _, res := range succeeded {
			parts = append(parts, res.Output)
		}
		return strings.Join(parts, "\n\n")
	}

	if s.Logger != nil {
		s.Logger.LogLLM(session.UserID, "", input, resp.Choices[0].Content)
	}
	return resp.Choices[0].Content
}

func fallbackMessage(failed []ExecutionResult) string {
	if len(failed) == 0 {
		return "I didn't have anything to do for that request."
	}
	var steps []string
	for _, res := range failed {
		if res.Status == TaskFailed {
			steps = append(steps, res.Capability)
		}
	}
	if len(steps) == 0 {
		return "I couldn't complete any of the steps for that request. Please try again."
	}
	return fmt.Sprintf(
		"I couldn't complete your request: the %s step failed and the remaining steps were skipped. Please try again or rephrase.",
		strings.Join(steps, ", "),
	)
}

func recentTurns(session *Session, n int) []store.Turn {
	turns := session.Turns()
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns
}

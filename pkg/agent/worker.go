// Package agent implements the worker researcher: a bounded tool-driven loop
// that drives one delegated sub-question to a compressed findings artifact.
// Each worker owns a private conversation and a private source list; it
// communicates back only through the Findings value it returns.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/deepresearch/pkg/llms"
	"github.com/kadirpekel/deepresearch/pkg/logger"
	"github.com/kadirpekel/deepresearch/pkg/observability"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
	"github.com/kadirpekel/deepresearch/pkg/research"
	"github.com/kadirpekel/deepresearch/pkg/search"
	"github.com/kadirpekel/deepresearch/pkg/tools"
)

const (
	// responseReserve is headroom left in the context window for the reply.
	responseReserve = 4096

	// keepRecentObservations is how many trailing tool observations pruning
	// preserves.
	keepRecentObservations = 6
)

const workerSystemPromptTemplate = `You are a research worker investigating one focused sub-question as part of a larger research effort. Today's date is %s.

Research brief: %s

Your sub-question: %s

Use the search tool to gather evidence and the reflect tool to assess progress. Prefer few, well-chosen searches over many shallow ones. Collect concrete facts with their sources; every claim you keep must be traceable to a numbered source from your search results. When you have enough evidence to answer the sub-question, stop calling tools.

Respond in %s.`

// Worker runs delegated research units. One Worker value is safe to reuse
// across tasks; all per-task state lives in Run.
type Worker struct {
	adapter       *llms.Adapter
	searchService *search.Service
	language      string
}

// NewWorker binds the worker model and the search pipeline.
func NewWorker(adapter *llms.Adapter, searchService *search.Service, language string) *Worker {
	if language == "" {
		language = "English"
	}
	return &Worker{
		adapter:       adapter,
		searchService: searchService,
		language:      language,
	}
}

// Run drives the task to a Findings artifact. It never returns nil: failure
// modes come back as Findings with status failed.
func (w *Worker) Run(ctx context.Context, task *research.WorkerTask) *research.Findings {
	tracer := observability.GetTracer("deepresearch.agent")
	ctx, span := tracer.Start(ctx, observability.SpanWorkerRun,
		trace.WithAttributes(attribute.String(observability.AttrTaskID, task.ID)))
	defer span.End()

	log := logger.GetLogger()
	log.Info("worker starting", "task_id", task.ID, "sub_question", task.SubQuestion)

	sources := research.NewSourceList()
	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewSearchTool(w.searchService, sources)); err != nil {
		return research.FailedFindings(task.ID, err)
	}
	if err := registry.Register(tools.NewReflectTool()); err != nil {
		return research.FailedFindings(task.ID, err)
	}

	conversation := []*protocol.Message{
		protocol.NewSystemMessage(w.systemPrompt(task)),
		protocol.NewUserMessage(task.SubQuestion),
	}

	var rawNotes []string
	toolCallsUsed := 0
	status := research.StatusExhausted

loop:
	for iteration := 0; iteration < task.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return research.FailedFindings(task.ID, research.ErrCancelled)
		}

		fitted, ok := w.fitContext(conversation)
		if !ok {
			log.Warn("worker conversation cannot fit context window", "task_id", task.ID)
			break
		}
		conversation = fitted

		turn, err := w.adapter.CompleteWithTools(ctx, conversation, registry.Definitions())
		if err != nil {
			var overflow *llms.ContextOverflowError
			if errors.As(err, &overflow) {
				break
			}
			if ctx.Err() != nil {
				return research.FailedFindings(task.ID, research.ErrCancelled)
			}
			log.Error("worker model call failed", "task_id", task.ID, "error", err)
			findings := research.FailedFindings(task.ID, err)
			findings.RawNotes = rawNotes
			findings.Sources = sources.Sources()
			return findings
		}

		assistant := protocol.NewAssistantMessage(turn.Text)
		assistant.ToolCalls = turn.ToolCalls
		conversation = append(conversation, assistant)

		if len(turn.ToolCalls) == 0 {
			status = research.StatusComplete
			break
		}

		for _, call := range turn.ToolCalls {
			if toolCallsUsed >= task.MaxToolCalls {
				break loop
			}
			toolCallsUsed++

			result := registry.Execute(ctx, call)
			observation := w.adapter.ObservationMessage(&protocol.ToolResult{
				ToolCallID: call.ID,
				Content:    result.Content,
				Error:      result.Error,
			})
			observation.Meta = map[string]string{"tool": call.Name, "task_id": task.ID}
			conversation = append(conversation, observation)

			if result.Success && call.Name == tools.ToolSearch {
				rawNotes = append(rawNotes, result.Content)
			}
		}
	}

	if ctx.Err() != nil {
		return research.FailedFindings(task.ID, research.ErrCancelled)
	}

	findings := w.compress(ctx, task, conversation, rawNotes, sources, status)
	log.Info("worker finished", "task_id", task.ID, "status", findings.Status,
		"tool_calls", toolCallsUsed, "sources", len(findings.Sources))
	return findings
}

func (w *Worker) systemPrompt(task *research.WorkerTask) string {
	return fmt.Sprintf(workerSystemPromptTemplate,
		time.Now().Format("Mon Jan 2, 2006"), renderBrief(task.Brief), task.SubQuestion, w.language)
}

// renderBrief summarizes the research brief for the worker: the question plus
// any success criteria and constraints the units must respect.
func renderBrief(brief *research.Brief) string {
	if brief == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(brief.Question)
	if len(brief.SuccessCriteria) > 0 {
		sb.WriteString("\n\nSuccess criteria:\n")
		for _, c := range brief.SuccessCriteria {
			sb.WriteString(fmt.Sprintf("- %s\n", c))
		}
	}
	if len(brief.Constraints) > 0 {
		sb.WriteString("\nConstraints:\n")
		for _, c := range brief.Constraints {
			sb.WriteString(fmt.Sprintf("- %s\n", c))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// fitContext prunes the conversation when it no longer fits the model
// window. Returns false when even the pruned form is too large.
func (w *Worker) fitContext(messages []*protocol.Message) ([]*protocol.Message, bool) {
	limit := w.adapter.Provider().GetContextWindow() - responseReserve
	if limit <= 0 {
		return messages, true
	}
	if w.adapter.CountTokens(messages) <= limit {
		return messages, true
	}

	pruned := pruneConversation(messages, keepRecentObservations)
	if w.adapter.CountTokens(pruned) <= limit {
		return pruned, true
	}
	return messages, false
}

// pruneConversation drops the oldest non-system messages, keeping every
// system message and the suffix covering the last keep observations.
func pruneConversation(messages []*protocol.Message, keep int) []*protocol.Message {
	// Find where the kept suffix starts: the keep-th observation from the end
	cut := len(messages)
	seen := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == protocol.RoleObservation {
			seen++
			if seen == keep {
				cut = i
				break
			}
		}
	}
	if seen < keep {
		// Fewer observations than the keep target: nothing safe to drop
		return messages
	}

	// An observation must stay adjacent to the assistant turn that caused it
	if cut > 0 && messages[cut-1].Role == protocol.RoleAssistant {
		cut--
	}

	out := make([]*protocol.Message, 0, len(messages))
	for i, msg := range messages {
		if msg.Role == protocol.RoleSystem || i >= cut {
			out = append(out, msg)
		}
	}
	return out
}

// Package supervisor implements the research supervisor: clarification,
// brief construction and the bounded reflect/delegate/complete loop that
// fans research units out to workers and collects their findings.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/deepresearch/pkg/config"
	"github.com/kadirpekel/deepresearch/pkg/llms"
	"github.com/kadirpekel/deepresearch/pkg/logger"
	"github.com/kadirpekel/deepresearch/pkg/observability"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
	"github.com/kadirpekel/deepresearch/pkg/research"
	"github.com/kadirpekel/deepresearch/pkg/tools"
)

// TerminalState records why the supervisor loop ended. Every state still
// yields a report.
type TerminalState string

const (
	// DoneByModel: the model emitted research_complete, or stopped calling
	// tools.
	DoneByModel TerminalState = "done_by_model"

	// DoneByIterations: the iteration cap ended the loop.
	DoneByIterations TerminalState = "done_by_iterations"

	// DoneByToolBudget: the session tool-call budget ended the loop.
	DoneByToolBudget TerminalState = "done_by_tool_budget"
)

// Truncated reports whether the state means research stopped before the
// model was satisfied.
func (s TerminalState) Truncated() bool {
	return s == DoneByIterations || s == DoneByToolBudget
}

// Runner executes one delegated research unit. The worker package provides
// the real implementation.
type Runner interface {
	Run(ctx context.Context, task *research.WorkerTask) *research.Findings
}

// ClarifyDecision is the structured outcome of the optional clarify phase.
type ClarifyDecision struct {
	NeedClarification bool   `json:"need_clarification" jsonschema:"description=Whether the question needs clarification before research can start"`
	Question          string `json:"question" jsonschema:"description=The clarification question to ask the user, empty if none is needed"`
}

// Result is everything the supervisor hands to the synthesizer.
type Result struct {
	Brief          *research.Brief
	Findings       []*research.Findings
	Terminal       TerminalState
	ToolCallsTotal int
	Transcript     []*protocol.Message
}

// Supervisor owns the orchestration flow. It is single-flow: one reflection
// or decision step at a time; only worker batches run concurrently.
type Supervisor struct {
	adapter *llms.Adapter
	runner  Runner
	cfg     *config.Config
}

// NewSupervisor wires the supervisor model to a worker runner.
func NewSupervisor(adapter *llms.Adapter, runner Runner, cfg *config.Config) *Supervisor {
	return &Supervisor{adapter: adapter, runner: runner, cfg: cfg}
}

var clarifySchema = llms.MustSchemaFor("clarify_decision", &ClarifyDecision{})

const clarifyPromptTemplate = `Assess whether the user's research request below is specific enough to start researching, or whether a single clarification question is needed first (ambiguous scope, missing timeframe, undefined terms). Only ask when research would otherwise likely miss the intent.

<request>
%s
</request>`

// Clarify asks the model whether the user's question needs clarification.
func (s *Supervisor) Clarify(ctx context.Context, messages []*protocol.Message) (*ClarifyDecision, error) {
	prompt := fmt.Sprintf(clarifyPromptTemplate, protocol.LastUserText(messages))

	var decision ClarifyDecision
	err := s.adapter.CompleteStructuredInto(ctx,
		[]*protocol.Message{protocol.NewUserMessage(prompt)},
		clarifySchema, &decision)
	if err != nil {
		return nil, fmt.Errorf("clarify phase failed: %w", err)
	}
	return &decision, nil
}

type briefDoc struct {
	Question        string   `json:"question" jsonschema:"description=The research question, restated precisely"`
	SuccessCriteria []string `json:"success_criteria" jsonschema:"description=What a complete answer must cover"`
	Constraints     []string `json:"constraints" jsonschema:"description=Scope constraints such as timeframe or region"`
}

var briefSchema = llms.MustSchemaFor("research_brief", &briefDoc{})

const briefPromptTemplate = `Turn the conversation below into a research brief: the precise question to answer, the criteria a complete answer must meet, and any scope constraints the user stated or implied. Today's date is %s. Do not add constraints the user did not give.

<conversation>
%s
</conversation>`

// BuildBrief distills the user conversation into the immutable research
// brief that every downstream component reads.
func (s *Supervisor) BuildBrief(ctx context.Context, messages []*protocol.Message) (*research.Brief, error) {
	var convo strings.Builder
	for _, msg := range messages {
		if msg.Role == protocol.RoleUser || msg.Role == protocol.RoleAssistant {
			convo.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
		}
	}

	prompt := fmt.Sprintf(briefPromptTemplate, time.Now().Format("Mon Jan 2, 2006"), convo.String())

	var doc briefDoc
	err := s.adapter.CompleteStructuredInto(ctx,
		[]*protocol.Message{protocol.NewUserMessage(prompt)},
		briefSchema, &doc)
	if err != nil {
		return nil, fmt.Errorf("brief phase failed: %w", err)
	}

	return &research.Brief{
		Question:        doc.Question,
		SuccessCriteria: doc.SuccessCriteria,
		Constraints:     doc.Constraints,
		Language:        s.cfg.ResponseLanguage,
	}, nil
}

const supervisorSystemPromptTemplate = `You are the lead researcher coordinating a team of research workers. Today's date is %s.

Work iteratively: use reflect to record what is known and what is missing, delegate_research to hand an independent sub-question to a worker (delegate several in one turn when the sub-questions do not depend on each other, up to %d run in parallel), and research_complete once the collected findings satisfy the brief. Prefer few well-scoped units over many overlapping ones.

Respond in %s.`

// loopState collects what the tool dispatches of the current turn produced.
// The supervisor is single-flow, so plain fields are safe.
type loopState struct {
	subQuestions []string
	complete     bool
}

func (st *loopState) EnqueueSubQuestion(subQuestion, rationale string) error {
	st.subQuestions = append(st.subQuestions, subQuestion)
	return nil
}

func (st *loopState) MarkResearchComplete() {
	st.complete = true
}

func (st *loopState) reset() {
	st.subQuestions = nil
	st.complete = false
}

// Run executes the supervisor loop over a finished brief.
func (s *Supervisor) Run(ctx context.Context, brief *research.Brief) (*Result, error) {
	tracer := observability.GetTracer("deepresearch.supervisor")
	ctx, span := tracer.Start(ctx, observability.SpanSupervisor)
	defer span.End()

	log := logger.GetLogger()

	state := &loopState{}
	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		tools.NewReflectTool(),
		tools.NewDelegateTool(state),
		tools.NewResearchCompleteTool(state),
	} {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}

	transcript := []*protocol.Message{
		protocol.NewSystemMessage(fmt.Sprintf(supervisorSystemPromptTemplate,
			time.Now().Format("Mon Jan 2, 2006"), s.cfg.MaxConcurrentUnits, s.cfg.ResponseLanguage)),
		protocol.NewUserMessage(renderBrief(brief)),
	}

	result := &Result{
		Brief:    brief,
		Terminal: DoneByIterations,
	}

	for iteration := 0; iteration < s.cfg.MaxSupervisorIterations; iteration++ {
		if ctx.Err() != nil {
			return nil, research.ErrCancelled
		}

		turn, err := s.adapter.CompleteWithTools(ctx, transcript, registry.Definitions())
		if err != nil {
			if ctx.Err() != nil {
				return nil, research.ErrCancelled
			}
			return nil, fmt.Errorf("supervisor step failed: %w", err)
		}

		assistant := protocol.NewAssistantMessage(turn.Text)
		assistant.ToolCalls = turn.ToolCalls
		transcript = append(transcript, assistant)

		if len(turn.ToolCalls) == 0 {
			// The model stopped steering; treat as completion
			result.Terminal = DoneByModel
			break
		}

		state.reset()
		budgetHit := false
		for _, call := range turn.ToolCalls {
			if result.ToolCallsTotal >= s.cfg.MaxTotalToolCalls {
				budgetHit = true
				break
			}
			result.ToolCallsTotal++

			toolResult := registry.Execute(ctx, call)
			observation := s.adapter.ObservationMessage(&protocol.ToolResult{
				ToolCallID: call.ID,
				Content:    toolResult.Content,
				Error:      toolResult.Error,
			})
			observation.Meta = map[string]string{"tool": call.Name}
			transcript = append(transcript, observation)
		}

		if len(state.subQuestions) > 0 {
			log.Info("supervisor delegating batch",
				"iteration", iteration, "units", len(state.subQuestions))

			batch, err := s.runBatch(ctx, brief, state.subQuestions)
			if err != nil {
				return nil, err
			}
			// Submission order, regardless of completion order
			for _, findings := range batch {
				result.Findings = append(result.Findings, findings)
				observation := protocol.NewObservationMessage(&protocol.ToolResult{
					Content: renderFindings(findings),
				})
				observation.Meta = map[string]string{"task_id": findings.TaskID}
				transcript = append(transcript, observation)
			}
		}

		if state.complete {
			result.Terminal = DoneByModel
			break
		}
		if budgetHit || result.ToolCallsTotal >= s.cfg.MaxTotalToolCalls {
			result.Terminal = DoneByToolBudget
			break
		}
	}

	if ctx.Err() != nil {
		return nil, research.ErrCancelled
	}

	result.Transcript = transcript
	log.Info("supervisor finished", "terminal", result.Terminal,
		"units", len(result.Findings), "tool_calls", result.ToolCallsTotal)
	return result, nil
}

func renderBrief(brief *research.Brief) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Research brief: %s\n", brief.Question))
	if len(brief.SuccessCriteria) > 0 {
		sb.WriteString("\nSuccess criteria:\n")
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

func renderFindings(findings *research.Findings) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Findings from research unit %s (status: %s)", findings.TaskID, findings.Status))
	if findings.Error != "" {
		sb.WriteString(fmt.Sprintf("\nError: %s", findings.Error))
	}
	if findings.CompressedText != "" {
		sb.WriteString("\n" + findings.CompressedText)
	}
	return sb.String()
}

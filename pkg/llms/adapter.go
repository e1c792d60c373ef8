package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/deepresearch/pkg/logger"
	"github.com/kadirpekel/deepresearch/pkg/observability"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
	"github.com/kadirpekel/deepresearch/pkg/react"
	"github.com/kadirpekel/deepresearch/pkg/utils"
)

const (
	// DefaultStructuredRetries bounds schema-validation retries in JSON mode.
	DefaultStructuredRetries = 3

	// reactParseRetries bounds re-prompts after an unparseable ReAct reply
	// within a single step.
	reactParseRetries = 2
)

// Adapter presents a capability-uniform surface over one Provider. Callers
// request completions, structured output and tool-driven turns without
// knowing whether the backend supports them natively; the adapter emulates
// what is missing.
type Adapter struct {
	provider          Provider
	structuredRetries int
	counter           *utils.TokenCounter
	logger            *slog.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithStructuredRetries overrides the schema-validation retry budget.
func WithStructuredRetries(n int) AdapterOption {
	return func(a *Adapter) {
		if n > 0 {
			a.structuredRetries = n
		}
	}
}

// NewAdapter wraps a provider.
func NewAdapter(provider Provider, opts ...AdapterOption) *Adapter {
	// A missing encoding degrades to character-based estimates
	counter, _ := utils.NewTokenCounter(provider.GetModelName())

	a := &Adapter{
		provider:          provider,
		structuredRetries: DefaultStructuredRetries,
		counter:           counter,
		logger:            logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider exposes the wrapped backend.
func (a *Adapter) Provider() Provider {
	return a.provider
}

// ModelName returns the backend model identifier.
func (a *Adapter) ModelName() string {
	return a.provider.GetModelName()
}

// Capabilities reports what the backend supports natively.
func (a *Adapter) Capabilities() Capabilities {
	return a.provider.Capabilities()
}

// Complete runs a plain completion.
func (a *Adapter) Complete(ctx context.Context, messages []*protocol.Message) (string, error) {
	text, _, _, err := a.generate(ctx, messages, nil)
	return text, err
}

// CompleteStructured produces a JSON document valid against the schema, or a
// StructuredOutputError once the retry budget is spent. Backends with native
// structured output are asked directly; others are driven through JSON-mode
// prompting with extraction, validation and corrective re-prompts.
func (a *Adapter) CompleteStructured(ctx context.Context, messages []*protocol.Message, structConfig *StructuredOutputConfig) (string, error) {
	if a.provider.Capabilities().NativeStructured {
		return a.structuredNative(ctx, messages, structConfig)
	}
	return a.structuredJSONMode(ctx, messages, structConfig)
}

// CompleteStructuredInto runs CompleteStructured and unmarshals the result.
func (a *Adapter) CompleteStructuredInto(ctx context.Context, messages []*protocol.Message, structConfig *StructuredOutputConfig, out interface{}) error {
	doc, err := a.CompleteStructured(ctx, messages, structConfig)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return &StructuredOutputError{
			Schema:   structConfig.Name,
			Attempts: 1,
			LastErr:  err,
			Raw:      doc,
		}
	}
	return nil
}

func (a *Adapter) structuredNative(ctx context.Context, messages []*protocol.Message, structConfig *StructuredOutputConfig) (string, error) {
	if err := a.checkContextWindow(messages); err != nil {
		return "", err
	}

	var lastErr error
	var lastRaw string

	for attempt := 1; attempt <= a.structuredRetries; attempt++ {
		start := time.Now()
		raw, tokens, err := a.provider.GenerateStructured(ctx, messages, structConfig)
		observability.GetGlobalMetrics().RecordLLMCall(ctx, a.ModelName(), time.Since(start), tokens, err)
		if err != nil {
			return "", WrapTransport(a.ModelName(), err)
		}

		if err := ValidateAgainstSchema(structConfig, raw); err == nil {
			return raw, nil
		} else {
			lastErr, lastRaw = err, raw
			a.logger.Warn("native structured output failed validation",
				"model", a.ModelName(), "schema", structConfig.Name, "attempt", attempt, "error", err)
		}
	}

	return "", &StructuredOutputError{
		Schema:   structConfig.Name,
		Attempts: a.structuredRetries,
		LastErr:  lastErr,
		Raw:      lastRaw,
	}
}

func (a *Adapter) structuredJSONMode(ctx context.Context, messages []*protocol.Message, structConfig *StructuredOutputConfig) (string, error) {
	schemaJSON, err := json.Marshal(structConfig.Schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}

	instruction := fmt.Sprintf(
		"Respond with a single JSON object matching this JSON schema, and nothing else. No prose, no markdown fences.\n\nSchema:\n%s",
		schemaJSON)

	working := protocol.CloneMessages(messages)
	working = append(working, protocol.NewSystemMessage(instruction))

	var lastErr error
	var lastRaw string

	for attempt := 1; attempt <= a.structuredRetries; attempt++ {
		if err := a.checkContextWindow(working); err != nil {
			return "", err
		}

		text, _, _, err := a.generate(ctx, working, nil)
		if err != nil {
			return "", err
		}
		lastRaw = text

		doc, err := ExtractJSONDocument(text)
		if err == nil {
			if verr := ValidateAgainstSchema(structConfig, doc); verr == nil {
				return doc, nil
			} else {
				err = verr
			}
		}
		lastErr = err

		a.logger.Debug("JSON-mode structured output rejected",
			"model", a.ModelName(), "schema", structConfig.Name, "attempt", attempt, "error", err)

		// Show the model its own reply and what was wrong with it
		working = append(working,
			protocol.NewAssistantMessage(text),
			protocol.NewUserMessage(fmt.Sprintf(
				"Your reply was not valid: %v. Respond again with only a JSON object matching the schema.", err)))
	}

	return "", &StructuredOutputError{
		Schema:   structConfig.Name,
		Attempts: a.structuredRetries,
		LastErr:  lastErr,
		Raw:      lastRaw,
	}
}

// CompleteWithTools runs one turn of a tool-driven conversation. Backends
// with native tool calling receive the definitions directly; others are
// driven through the ReAct text protocol. A turn with no tool calls means
// the model considers the step complete.
func (a *Adapter) CompleteWithTools(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (*ToolTurn, error) {
	if a.provider.Capabilities().NativeTools {
		text, calls, _, err := a.generate(ctx, messages, tools)
		if err != nil {
			return nil, err
		}
		return &ToolTurn{Text: text, ToolCalls: calls}, nil
	}
	return a.toolsReAct(ctx, messages, tools)
}

func (a *Adapter) toolsReAct(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (*ToolTurn, error) {
	specs := make([]react.ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, react.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}

	working := protocol.CloneMessages(messages)
	working = append(working, protocol.NewSystemMessage(react.BuildPreamble(specs)))

	var text string
	for attempt := 0; ; attempt++ {
		var err error
		text, _, _, err = a.generate(ctx, working, nil)
		if err != nil {
			return nil, err
		}

		step, err := react.Decode(text)
		if err == nil {
			if step.IsFinal {
				return &ToolTurn{Text: step.FinalAnswer}, nil
			}
			call := &protocol.ToolCall{
				ID:   react.NewCallID(),
				Name: step.Action,
				Args: step.ActionInput,
			}
			return &ToolTurn{Text: step.Thought, ToolCalls: []*protocol.ToolCall{call}}, nil
		}

		if attempt >= reactParseRetries {
			a.logger.Warn("unparseable tool reply after retries, treating as completion",
				"model", a.ModelName(), "error", err)
			break
		}

		a.logger.Debug("unparseable tool reply, nudging",
			"model", a.ModelName(), "attempt", attempt+1, "error", err)

		working = append(working,
			protocol.NewAssistantMessage(text),
			protocol.NewObservationMessage(&protocol.ToolResult{Content: react.Nudge}))
	}

	// Budget spent: surface the raw text as a turn without tool calls so the
	// caller's loop can terminate normally.
	return &ToolTurn{Text: text}, nil
}

// ObservationMessage records a tool result the way the backend expects:
// native backends see a plain observation tied to the call ID, ReAct
// backends see an Observation-prefixed line.
func (a *Adapter) ObservationMessage(result *protocol.ToolResult) *protocol.Message {
	msg := protocol.NewObservationMessage(result)
	if !a.provider.Capabilities().NativeTools {
		msg.Content = react.FormatObservation(msg.Content)
	}
	return msg
}

// CountTokens estimates the token footprint of a message slice.
func (a *Adapter) CountTokens(messages []*protocol.Message) int {
	total := 0
	for _, m := range messages {
		if a.counter != nil {
			total += a.counter.CountWithRole(string(m.Role), m.Content)
		} else {
			total += utils.EstimateTokens(m.Content) + 3
		}
	}
	return total
}

// checkContextWindow rejects prompts that cannot fit the backend window,
// leaving headroom for the reply.
func (a *Adapter) checkContextWindow(messages []*protocol.Message) error {
	limit := a.provider.GetContextWindow()
	if limit <= 0 {
		return nil
	}
	tokens := a.CountTokens(messages)
	if tokens > limit {
		return &ContextOverflowError{Model: a.ModelName(), Tokens: tokens, Limit: limit}
	}
	return nil
}

// generate is the single choke point for backend calls: overflow precheck,
// span, metrics, transport wrapping.
func (a *Adapter) generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (string, []*protocol.ToolCall, int, error) {
	if err := a.checkContextWindow(messages); err != nil {
		return "", nil, 0, err
	}

	tracer := observability.GetTracer("deepresearch.llms")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(attribute.String(observability.AttrLLMModel, a.ModelName())))
	defer span.End()

	start := time.Now()
	text, calls, tokens, err := a.provider.Generate(ctx, messages, tools)
	observability.GetGlobalMetrics().RecordLLMCall(ctx, a.ModelName(), time.Since(start), tokens, err)

	if err != nil {
		span.RecordError(err)
		return "", nil, 0, WrapTransport(a.ModelName(), err)
	}

	span.SetAttributes(attribute.Int(observability.AttrLLMTokensOutput, tokens))
	return text, calls, tokens, nil
}

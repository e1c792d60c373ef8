// Package observability provides tracing and metrics instrumentation for the
// research engine. Span creation goes through the global otel providers, so a
// host application wires exporters; without one, everything is a no-op.
package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Span names used across the engine.
const (
	SpanLLMRequest    = "llm.request"
	SpanToolExecution = "tool.execution"
	SpanSearchQuery   = "search.query"
	SpanWorkerRun     = "research.worker"
	SpanSupervisor    = "research.supervisor"
)

// Attribute keys used across the engine.
const (
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrToolName        = "tool.name"
	AttrSearchQuery     = "search.query"
	AttrTaskID          = "research.task_id"
)

// GetTracer returns a tracer from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Metrics records engine-level counters and histograms via the otel metric
// API. Instruments are created lazily from the global meter provider.
type Metrics struct {
	llmDuration  metric.Float64Histogram
	llmTokens    metric.Int64Counter
	llmErrors    metric.Int64Counter
	toolDuration metric.Float64Histogram
	toolErrors   metric.Int64Counter
	searchCalls  metric.Int64Counter
}

var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// GetGlobalMetrics returns the process-wide metrics recorder.
func GetGlobalMetrics() *Metrics {
	globalMetricsOnce.Do(func() {
		meter := otel.Meter("deepresearch")

		llmDuration, _ := meter.Float64Histogram(
			"deepresearch_llm_request_duration_seconds",
			metric.WithDescription("LLM request duration in seconds"),
		)
		llmTokens, _ := meter.Int64Counter(
			"deepresearch_llm_tokens_total",
			metric.WithDescription("Total tokens used across LLM calls"),
		)
		llmErrors, _ := meter.Int64Counter(
			"deepresearch_llm_errors_total",
			metric.WithDescription("Total LLM call errors"),
		)
		toolDuration, _ := meter.Float64Histogram(
			"deepresearch_tool_execution_duration_seconds",
			metric.WithDescription("Tool execution duration in seconds"),
		)
		toolErrors, _ := meter.Int64Counter(
			"deepresearch_tool_errors_total",
			metric.WithDescription("Total tool execution errors"),
		)
		searchCalls, _ := meter.Int64Counter(
			"deepresearch_search_queries_total",
			metric.WithDescription("Total search queries issued"),
		)

		globalMetrics = &Metrics{
			llmDuration:  llmDuration,
			llmTokens:    llmTokens,
			llmErrors:    llmErrors,
			toolDuration: toolDuration,
			toolErrors:   toolErrors,
			searchCalls:  searchCalls,
		}
	})
	return globalMetrics
}

// RecordLLMCall records one LLM request outcome.
func (m *Metrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, tokens int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrLLMModel, model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	if tokens > 0 {
		m.llmTokens.Add(ctx, int64(tokens), attrs)
	}
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}

// RecordToolExecution records one tool dispatch outcome.
func (m *Metrics) RecordToolExecution(ctx context.Context, toolName string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrToolName, toolName))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

// RecordSearchQuery records one query issued to the search backend.
func (m *Metrics) RecordSearchQuery(ctx context.Context) {
	if m == nil {
		return
	}
	m.searchCalls.Add(ctx, 1)
}

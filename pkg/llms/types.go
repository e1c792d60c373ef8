// Package llms implements the model adapter: a uniform interface over LLM
// backends that differ in whether they natively support structured output and
// tool calling. Backends lacking a capability are driven through JSON-mode
// prompts and the ReAct text protocol, with parsing and bounded recovery.
package llms

import (
	"context"

	"github.com/kadirpekel/deepresearch/pkg/protocol"
)

// ToolDefinition describes a tool to a native tool-calling backend.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// StructuredOutputConfig requests schema-constrained output from a provider
// that supports it natively.
type StructuredOutputConfig struct {
	// Name labels the schema in provider requests that require one.
	Name string `json:"name,omitempty"`

	// Schema is a JSON-schema document as a generic map.
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// Capabilities records what a backend supports natively. Branching on these
// flags happens at the adapter boundary only.
type Capabilities struct {
	NativeStructured bool
	NativeTools      bool
}

// Provider is one LLM backend. Providers are safe for concurrent use by
// distinct workers.
type Provider interface {
	// Generate produces text and, when tools are passed to a native
	// tool-calling backend, zero or more tool calls. Returns text, tool
	// calls and total tokens used.
	Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (string, []*protocol.ToolCall, int, error)

	// GenerateStructured produces output constrained by the given schema on
	// backends with native support. Callers must check Capabilities first;
	// the adapter handles the JSON-mode fallback.
	GenerateStructured(ctx context.Context, messages []*protocol.Message, structConfig *StructuredOutputConfig) (string, int, error)

	Capabilities() Capabilities

	GetModelName() string

	GetContextWindow() int

	Close() error
}

// ToolTurn is one adapter response in a tool-driven loop: optional narrative
// text plus zero or more tool calls. An empty ToolCalls list signals the
// model considers the step complete.
type ToolTurn struct {
	Text      string
	ToolCalls []*protocol.ToolCall
}

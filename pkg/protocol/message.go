// Package protocol defines the conversation message types shared by every
// component of the research engine: messages, tool calls and tool results.
package protocol

import "fmt"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleSystem      Role = "system"
	RoleObservation Role = "observation"
)

// Message is one entry in an append-only conversation. Meta carries optional
// bookkeeping (task IDs, tool names) that never reaches the model verbatim.
// ToolCalls is set on assistant messages produced by a native tool-calling
// backend; observation messages reference the call they answer through
// ToolCallID so providers can reconstruct their wire format.
type Message struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []*ToolCall       `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"arguments"`
}

type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	Error      string `json:"error,omitempty"`
}

func NewUserMessage(text string) *Message {
	return &Message{Role: RoleUser, Content: text}
}

func NewSystemMessage(text string) *Message {
	return &Message{Role: RoleSystem, Content: text}
}

func NewAssistantMessage(text string) *Message {
	return &Message{Role: RoleAssistant, Content: text}
}

// NewObservationMessage records a tool result in the conversation. The
// observation is what the model sees on its next turn.
func NewObservationMessage(result *ToolResult) *Message {
	content := result.Content
	if result.Error != "" {
		content = fmt.Sprintf("Error: %s", result.Error)
	}
	return &Message{
		Role:       RoleObservation,
		Content:    content,
		ToolCallID: result.ToolCallID,
	}
}

// LastUserText returns the content of the most recent user message.
func LastUserText(messages []*Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// CloneMessages returns a shallow copy of the slice so callers can append
// without sharing backing arrays across goroutines.
func CloneMessages(messages []*Message) []*Message {
	out := make([]*Message, len(messages))
	copy(out, messages)
	return out
}

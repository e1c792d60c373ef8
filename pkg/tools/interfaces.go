// Package tools implements the fixed tool surface exposed to the supervisor
// and worker loops: search, reflect, delegate_research and research_complete.
// A registry dispatches parsed tool calls; supervisor-only tools are withheld
// from workers by handing each loop a restricted registry.
package tools

import (
	"context"
)

// Tool names. The set is fixed per session.
const (
	ToolSearch           = "search"
	ToolReflect          = "reflect"
	ToolDelegateResearch = "delegate_research"
	ToolResearchComplete = "research_complete"
)

// ToolInfo describes a tool to the model: name, description and a JSON
// schema for its arguments.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ToolResult is the outcome of one dispatch. Content is what the model sees
// as the observation; Error is set instead when the call failed.
type ToolResult struct {
	Success  bool   `json:"success"`
	Content  string `json:"content,omitempty"`
	Error    string `json:"error,omitempty"`
	ToolName string `json:"tool_name"`
}

// Tool is one invokable capability.
type Tool interface {
	GetInfo() ToolInfo

	Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error)
}

func successResult(name, content string) (ToolResult, error) {
	return ToolResult{Success: true, Content: content, ToolName: name}, nil
}

func errorResult(name string, err error) (ToolResult, error) {
	return ToolResult{Success: false, Error: err.Error(), ToolName: name}, err
}

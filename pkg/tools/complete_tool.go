package tools

import (
	"context"
)

const completeDescription = "Signal that research is complete and the gathered " +
	"findings are sufficient to answer the brief. Takes no arguments."

// CompletionSignal is flipped when the model declares research done. The
// supervisor loop implements it.
type CompletionSignal interface {
	MarkResearchComplete()
}

// ResearchCompleteTool signals termination. Supervisor-only.
type ResearchCompleteTool struct {
	signal CompletionSignal
	info   ToolInfo
}

func NewResearchCompleteTool(signal CompletionSignal) *ResearchCompleteTool {
	return &ResearchCompleteTool{
		signal: signal,
		info: ToolInfo{
			Name:        ToolResearchComplete,
			Description: completeDescription,
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

func (t *ResearchCompleteTool) GetInfo() ToolInfo {
	return t.info
}

func (t *ResearchCompleteTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	t.signal.MarkResearchComplete()
	return successResult(ToolResearchComplete, "Research marked complete.")
}

package tools

import (
	"context"
	"fmt"

	"github.com/kadirpekel/deepresearch/pkg/llms"
)

const delegateDescription = "Delegate a focused sub-question to a research worker. " +
	"Call once per independent sub-topic; parallel calls in one turn run concurrently."

type delegateArgs struct {
	SubQuestion string `json:"sub_question" jsonschema:"description=The focused research question to delegate"`
	Rationale   string `json:"rationale,omitempty" jsonschema:"description=Why this sub-question matters"`
}

// TaskSink receives delegated sub-questions. The supervisor loop implements
// it; tools never touch supervisor state directly.
type TaskSink interface {
	EnqueueSubQuestion(subQuestion, rationale string) error
}

// DelegateTool enqueues a worker task. Supervisor-only.
type DelegateTool struct {
	sink TaskSink
	info ToolInfo
}

func NewDelegateTool(sink TaskSink) *DelegateTool {
	schema := llms.MustSchemaFor("delegate_research", &delegateArgs{})
	return &DelegateTool{
		sink: sink,
		info: ToolInfo{
			Name:        ToolDelegateResearch,
			Description: delegateDescription,
			Parameters:  schema.Schema,
		},
	}
}

func (t *DelegateTool) GetInfo() ToolInfo {
	return t.info
}

func (t *DelegateTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	subQuestion, ok := args["sub_question"].(string)
	if !ok || subQuestion == "" {
		return errorResult(ToolDelegateResearch, fmt.Errorf("delegate_research requires a sub_question string"))
	}
	rationale, _ := args["rationale"].(string)

	if err := t.sink.EnqueueSubQuestion(subQuestion, rationale); err != nil {
		return errorResult(ToolDelegateResearch, err)
	}
	return successResult(ToolDelegateResearch, fmt.Sprintf("Delegated research unit: %s", subQuestion))
}

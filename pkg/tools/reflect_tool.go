package tools

import (
	"context"
	"fmt"

	"github.com/kadirpekel/deepresearch/pkg/llms"
)

const reflectDescription = "Record a strategic reflection about research progress: " +
	"what has been learned, what is still missing, and what to do next. " +
	"Has no side effects; the reflection stays in the transcript."

type reflectArgs struct {
	Reflection string `json:"reflection" jsonschema:"description=The reflection to record"`
}

// ReflectTool echoes the reflection back as the observation, keeping the
// model's own reasoning visible on subsequent turns.
type ReflectTool struct {
	info ToolInfo
}

func NewReflectTool() *ReflectTool {
	schema := llms.MustSchemaFor("reflect", &reflectArgs{})
	return &ReflectTool{
		info: ToolInfo{
			Name:        ToolReflect,
			Description: reflectDescription,
			Parameters:  schema.Schema,
		},
	}
}

func (t *ReflectTool) GetInfo() ToolInfo {
	return t.info
}

func (t *ReflectTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	reflection, ok := args["reflection"].(string)
	if !ok || reflection == "" {
		return errorResult(ToolReflect, fmt.Errorf("reflect requires a reflection string"))
	}
	return successResult(ToolReflect, fmt.Sprintf("Reflection recorded: %s", reflection))
}

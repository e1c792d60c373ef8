package tools

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/deepresearch/pkg/llms"
	"github.com/kadirpekel/deepresearch/pkg/observability"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
)

// Registry holds the tool set for one loop and dispatches calls to it.
// Registration order is preserved for tool listings.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	name := tool.GetInfo().Name
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get returns a registered tool.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns tool infos in registration order.
func (r *Registry) List() []ToolInfo {
	infos := make([]ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, r.tools[name].GetInfo())
	}
	return infos
}

// Definitions renders the registry for the model adapter.
func (r *Registry) Definitions() []llms.ToolDefinition {
	defs := make([]llms.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		info := r.tools[name].GetInfo()
		defs = append(defs, llms.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  info.Parameters,
		})
	}
	return defs
}

// Restrict returns a registry exposing only the named tools. Loops that must
// not delegate or terminate get a restricted view of the same instances.
func (r *Registry) Restrict(names ...string) *Registry {
	sub := NewRegistry()
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			_ = sub.Register(tool)
		}
	}
	return sub
}

// Execute normalizes the call's arguments and dispatches it. Unknown tools
// and tool failures come back as error results so the loop can surface them
// as observations instead of aborting.
func (r *Registry) Execute(ctx context.Context, call *protocol.ToolCall) ToolResult {
	startTime := time.Now()

	tracer := observability.GetTracer("deepresearch.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(attribute.String(observability.AttrToolName, call.Name)))
	defer span.End()

	tool, ok := r.tools[call.Name]
	if !ok {
		err := fmt.Errorf("unknown tool: %s", call.Name)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool not found")
		observability.GetGlobalMetrics().RecordToolExecution(ctx, call.Name, time.Since(startTime), err)
		return ToolResult{Success: false, Error: err.Error(), ToolName: call.Name}
	}

	args := Normalize(call.Name, call.Args)
	result, execErr := tool.Execute(ctx, args)

	if execErr != nil {
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	observability.GetGlobalMetrics().RecordToolExecution(ctx, call.Name, time.Since(startTime), execErr)

	return result
}

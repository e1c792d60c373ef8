package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepresearch/pkg/protocol"
)

type fakeSink struct {
	subQuestions []string
	rationales   []string
}

func (s *fakeSink) EnqueueSubQuestion(subQuestion, rationale string) error {
	s.subQuestions = append(s.subQuestions, subQuestion)
	s.rationales = append(s.rationales, rationale)
	return nil
}

type fakeSignal struct {
	complete bool
}

func (s *fakeSignal) MarkResearchComplete() {
	s.complete = true
}

func newFullRegistry(t *testing.T, sink TaskSink, signal CompletionSignal) *Registry {
	t.Helper()
	registry := NewRegistry()
	require.NoError(t, registry.Register(NewReflectTool()))
	require.NoError(t, registry.Register(NewDelegateTool(sink)))
	require.NoError(t, registry.Register(NewResearchCompleteTool(signal)))
	return registry
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(NewReflectTool()))
	assert.Error(t, registry.Register(NewReflectTool()))
}

func TestExecuteDispatchesWithNormalization(t *testing.T) {
	registry := newFullRegistry(t, &fakeSink{}, &fakeSignal{})

	// "thought" is an alias the dispatcher must map to "reflection"
	result := registry.Execute(context.Background(), &protocol.ToolCall{
		ID:   "c1",
		Name: ToolReflect,
		Args: map[string]interface{}{"thought": "need more data on pricing"},
	})

	assert.True(t, result.Success)
	assert.Contains(t, result.Content, "need more data on pricing")
}

func TestExecuteUnknownTool(t *testing.T) {
	registry := NewRegistry()

	result := registry.Execute(context.Background(), &protocol.ToolCall{
		ID:   "c1",
		Name: "no_such_tool",
		Args: map[string]interface{}{},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tool")
}

func TestDelegateEnqueues(t *testing.T) {
	sink := &fakeSink{}
	registry := newFullRegistry(t, sink, &fakeSignal{})

	result := registry.Execute(context.Background(), &protocol.ToolCall{
		ID:   "c1",
		Name: ToolDelegateResearch,
		Args: map[string]interface{}{"sub_question": "What changed in Go 1.24?", "rationale": "core topic"},
	})

	assert.True(t, result.Success)
	assert.Equal(t, []string{"What changed in Go 1.24?"}, sink.subQuestions)
	assert.Equal(t, []string{"core topic"}, sink.rationales)
}

func TestResearchCompleteSignals(t *testing.T) {
	signal := &fakeSignal{}
	registry := newFullRegistry(t, &fakeSink{}, signal)

	result := registry.Execute(context.Background(), &protocol.ToolCall{
		ID:   "c1",
		Name: ToolResearchComplete,
		Args: map[string]interface{}{},
	})

	assert.True(t, result.Success)
	assert.True(t, signal.complete)
}

func TestRestrictHidesTools(t *testing.T) {
	signal := &fakeSignal{}
	registry := newFullRegistry(t, &fakeSink{}, signal)

	workerView := registry.Restrict(ToolReflect)

	assert.Len(t, workerView.List(), 1)
	_, ok := workerView.Get(ToolDelegateResearch)
	assert.False(t, ok)

	result := workerView.Execute(context.Background(), &protocol.ToolCall{
		ID:   "c1",
		Name: ToolResearchComplete,
		Args: map[string]interface{}{},
	})
	assert.False(t, result.Success)
	assert.False(t, signal.complete, "restricted registry must not reach hidden tools")
}

func TestDefinitionsPreserveOrder(t *testing.T) {
	registry := newFullRegistry(t, &fakeSink{}, &fakeSignal{})

	defs := registry.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, ToolReflect, defs[0].Name)
	assert.Equal(t, ToolDelegateResearch, defs[1].Name)
	assert.Equal(t, ToolResearchComplete, defs[2].Name)
	assert.NotEmpty(t, defs[0].Parameters)
}

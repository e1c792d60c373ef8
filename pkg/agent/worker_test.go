package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepresearch/pkg/llms"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
	"github.com/kadirpekel/deepresearch/pkg/research"
	"github.com/kadirpekel/deepresearch/pkg/search"
)

// scriptedTurn is one Generate reply: narration plus optional tool calls.
type scriptedTurn struct {
	text  string
	calls []*protocol.ToolCall
}

// scriptedWorkerModel feeds Generate from a turn script and answers
// GenerateStructured from documents keyed by schema name.
type scriptedWorkerModel struct {
	turns          []scriptedTurn
	structuredDocs map[string]string
	turnIndex      int
	structuredSeen int
	window         int
}

func (m *scriptedWorkerModel) Generate(ctx context.Context, messages []*protocol.Message, tools []llms.ToolDefinition) (string, []*protocol.ToolCall, int, error) {
	if m.turnIndex >= len(m.turns) {
		return "", nil, 5, nil
	}
	turn := m.turns[m.turnIndex]
	m.turnIndex++
	return turn.text, turn.calls, 5, nil
}

func (m *scriptedWorkerModel) GenerateStructured(ctx context.Context, messages []*protocol.Message, structConfig *llms.StructuredOutputConfig) (string, int, error) {
	m.structuredSeen++
	return m.structuredDocs[structConfig.Name], 5, nil
}

func (m *scriptedWorkerModel) Capabilities() llms.Capabilities {
	return llms.Capabilities{NativeStructured: true, NativeTools: true}
}
func (m *scriptedWorkerModel) GetModelName() string { return "scripted-worker" }
func (m *scriptedWorkerModel) GetContextWindow() int {
	if m.window > 0 {
		return m.window
	}
	return 128000
}
func (m *scriptedWorkerModel) Close() error { return nil }

type cannedSearch struct {
	results []*search.Result
}

func (p *cannedSearch) Search(ctx context.Context, batch *search.Batch) (*search.BatchResult, error) {
	return &search.BatchResult{Results: p.results}, nil
}

func newTestWorker(model *scriptedWorkerModel, results ...*search.Result) *Worker {
	adapter := llms.NewAdapter(model)
	summarizer := search.NewSummarizer(adapter, 50000, 2)
	service := search.NewService(&cannedSearch{results: results}, summarizer)
	return NewWorker(adapter, service, "English")
}

func searchCall(id string) *protocol.ToolCall {
	return &protocol.ToolCall{
		ID:   id,
		Name: "search",
		Args: map[string]interface{}{"queries": []interface{}{"hnsw algorithm"}},
	}
}

func newTask(maxIterations, maxToolCalls int) *research.WorkerTask {
	brief := &research.Brief{Question: "What is HNSW?", Language: "English"}
	return research.NewWorkerTask(brief, "How does the HNSW index structure work?", maxIterations, maxToolCalls)
}

func TestWorkerHappyPath(t *testing.T) {
	model := &scriptedWorkerModel{
		turns: []scriptedTurn{
			{text: "searching", calls: []*protocol.ToolCall{searchCall("c1")}},
			{text: "I have enough evidence now."},
		},
		structuredDocs: map[string]string{
			"webpage_summary":     `{"summary": "HNSW layers explained", "key_excerpts": []}`,
			"compressed_findings": `{"claims": [{"text": "HNSW is a layered proximity graph", "source_indices": [1]}]}`,
		},
	}
	worker := newTestWorker(model,
		&search.Result{URL: "https://arxiv.org/hnsw", Title: "HNSW Paper", RawContent: "layered graphs"})

	findings := worker.Run(context.Background(), newTask(5, 8))

	assert.Equal(t, research.StatusComplete, findings.Status)
	assert.Contains(t, findings.CompressedText, "[1]")
	require.Len(t, findings.Sources, 1)
	assert.Equal(t, "https://arxiv.org/hnsw", findings.Sources[0].URL)
	assert.NotEmpty(t, findings.RawNotes)
}

func TestWorkerSystemPromptIncludesBrief(t *testing.T) {
	worker := newTestWorker(&scriptedWorkerModel{})
	brief := &research.Brief{
		Question:        "What is HNSW?",
		SuccessCriteria: []string{"cover layering", "cover recall/latency tradeoffs"},
		Constraints:     []string{"post-2016 sources only"},
	}
	task := research.NewWorkerTask(brief, "How does layering work?", 5, 8)

	prompt := worker.systemPrompt(task)

	assert.Contains(t, prompt, "What is HNSW?")
	assert.Contains(t, prompt, "cover recall/latency tradeoffs")
	assert.Contains(t, prompt, "post-2016 sources only")
	assert.Contains(t, prompt, "How does layering work?")
}

func TestWorkerExhaustsToolBudget(t *testing.T) {
	turns := make([]scriptedTurn, 10)
	for i := range turns {
		turns[i] = scriptedTurn{calls: []*protocol.ToolCall{searchCall(fmt.Sprintf("c%d", i))}}
	}
	model := &scriptedWorkerModel{
		turns: turns,
		structuredDocs: map[string]string{
			"webpage_summary":     `{"summary": "s", "key_excerpts": []}`,
			"compressed_findings": `{"claims": [{"text": "partial evidence", "source_indices": [1]}]}`,
		},
	}
	worker := newTestWorker(model,
		&search.Result{URL: "https://x.test", Title: "T", RawContent: "c"})

	findings := worker.Run(context.Background(), newTask(10, 2))

	assert.Equal(t, research.StatusExhausted, findings.Status)
	assert.NotEmpty(t, findings.CompressedText, "partial findings still get compressed")
}

func TestWorkerExhaustsIterations(t *testing.T) {
	model := &scriptedWorkerModel{
		turns: []scriptedTurn{
			{calls: []*protocol.ToolCall{searchCall("c1")}},
			{calls: []*protocol.ToolCall{searchCall("c2")}},
		},
		structuredDocs: map[string]string{
			"webpage_summary":     `{"summary": "s", "key_excerpts": []}`,
			"compressed_findings": `{"claims": [{"text": "claim", "source_indices": [1]}]}`,
		},
	}
	worker := newTestWorker(model,
		&search.Result{URL: "https://x.test", Title: "T", RawContent: "c"})

	findings := worker.Run(context.Background(), newTask(2, 10))

	assert.Equal(t, research.StatusExhausted, findings.Status)
}

func TestWorkerNoSearchSuccessReturnsEmptySources(t *testing.T) {
	// The model never calls a tool; there is no evidence to compress.
	model := &scriptedWorkerModel{
		turns: []scriptedTurn{{text: "I cannot research this."}},
	}
	worker := newTestWorker(model)

	findings := worker.Run(context.Background(), newTask(3, 3))

	assert.Equal(t, research.StatusComplete, findings.Status)
	assert.Empty(t, findings.Sources)
	assert.Empty(t, findings.CompressedText)
	assert.Zero(t, model.structuredSeen, "nothing to compress, no model call")
}

func TestWorkerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedWorkerModel{
		turns: []scriptedTurn{{calls: []*protocol.ToolCall{searchCall("c1")}}},
	}
	worker := newTestWorker(model)

	findings := worker.Run(ctx, newTask(3, 3))

	assert.Equal(t, research.StatusFailed, findings.Status)
	assert.Equal(t, research.ErrCancelled.Error(), findings.Error)
}

func TestPruneConversationKeepsSystemAndRecentObservations(t *testing.T) {
	messages := []*protocol.Message{protocol.NewSystemMessage("system prompt")}
	for i := 0; i < 10; i++ {
		messages = append(messages,
			protocol.NewAssistantMessage(fmt.Sprintf("turn %d", i)),
			&protocol.Message{Role: protocol.RoleObservation, Content: fmt.Sprintf("obs %d", i)},
		)
	}

	pruned := pruneConversation(messages, 3)

	assert.Equal(t, protocol.RoleSystem, pruned[0].Role)
	var observations []string
	for _, m := range pruned {
		if m.Role == protocol.RoleObservation {
			observations = append(observations, m.Content)
		}
	}
	assert.Equal(t, []string{"obs 7", "obs 8", "obs 9"}, observations)
	// The assistant turn that produced the oldest kept observation survives
	assert.Equal(t, "turn 7", pruned[1].Content)
}

func TestPruneConversationNoopWhenFewObservations(t *testing.T) {
	messages := []*protocol.Message{
		protocol.NewSystemMessage("s"),
		protocol.NewAssistantMessage("a"),
		{Role: protocol.RoleObservation, Content: "obs"},
	}
	assert.Equal(t, messages, pruneConversation(messages, 6))
}

func TestRenderClaimsDropsInvalidIndices(t *testing.T) {
	claims := []compressedClaim{
		{Text: "good claim", SourceIndices: []int{1, 9}},
		{Text: "orphan claim", SourceIndices: []int{7}},
		{Text: "", SourceIndices: []int{1}},
	}

	out := renderClaims(claims, 2)

	assert.Equal(t, "- good claim [1]", out)
}

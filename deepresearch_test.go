package deepresearch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepresearch/pkg/config"
	"github.com/kadirpekel/deepresearch/pkg/llms"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
	"github.com/kadirpekel/deepresearch/pkg/research"
	"github.com/kadirpekel/deepresearch/pkg/search"
	"github.com/kadirpekel/deepresearch/pkg/tools"
)

type engineTurn struct {
	text  string
	calls []*protocol.ToolCall
}

// scriptedProvider serves canned turns and structured documents keyed by
// schema name. Workers run concurrently, so access is locked.
type scriptedProvider struct {
	mu              sync.Mutex
	turns           []engineTurn
	turnIndex       int
	structuredDocs  map[string]string
	generateCalls   int
	structuredCalls int

	// onGenerate, when set, runs before every Generate call.
	onGenerate func(ctx context.Context) error
}

func (p *scriptedProvider) Generate(ctx context.Context, messages []*protocol.Message, defs []llms.ToolDefinition) (string, []*protocol.ToolCall, int, error) {
	if p.onGenerate != nil {
		if err := p.onGenerate(ctx); err != nil {
			return "", nil, 0, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.generateCalls++
	if p.turnIndex >= len(p.turns) {
		return "done", nil, 5, nil
	}
	turn := p.turns[p.turnIndex]
	p.turnIndex++
	return turn.text, turn.calls, 5, nil
}

func (p *scriptedProvider) GenerateStructured(ctx context.Context, messages []*protocol.Message, structConfig *llms.StructuredOutputConfig) (string, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.structuredCalls++
	return p.structuredDocs[structConfig.Name], 5, nil
}

func (p *scriptedProvider) Capabilities() llms.Capabilities {
	return llms.Capabilities{NativeStructured: true, NativeTools: true}
}
func (p *scriptedProvider) GetModelName() string  { return "scripted" }
func (p *scriptedProvider) GetContextWindow() int { return 128000 }
func (p *scriptedProvider) Close() error          { return nil }

type cannedSearchProvider struct {
	results []*search.Result
}

func (p *cannedSearchProvider) Search(ctx context.Context, batch *search.Batch) (*search.BatchResult, error) {
	return &search.BatchResult{Results: p.results}, nil
}

func delegate(id, subQuestion string) *protocol.ToolCall {
	return &protocol.ToolCall{
		ID:   id,
		Name: tools.ToolDelegateResearch,
		Args: map[string]interface{}{"sub_question": subQuestion},
	}
}

func searchCall(id string, queries ...interface{}) *protocol.ToolCall {
	return &protocol.ToolCall{
		ID:   id,
		Name: tools.ToolSearch,
		Args: map[string]interface{}{"queries": queries},
	}
}

func complete(id string) *protocol.ToolCall {
	return &protocol.ToolCall{ID: id, Name: tools.ToolResearchComplete, Args: map[string]interface{}{}}
}

const briefDoc = `{"question": "Explain HNSW indexes", "success_criteria": ["cover layering"], "constraints": []}`

func newTestEngine(t *testing.T, cfg *config.Config,
	supervisorModel, workerModel, summarizationModel, reportModel *scriptedProvider,
	searchProvider search.Provider) *Engine {
	t.Helper()

	engine, err := New(cfg,
		WithSupervisorProvider(supervisorModel),
		WithWorkerProvider(workerModel),
		WithSummarizationProvider(summarizationModel),
		WithReportProvider(reportModel),
		WithSearchProvider(searchProvider),
	)
	require.NoError(t, err)
	return engine
}

func TestResearchHappyPath(t *testing.T) {
	supervisorModel := &scriptedProvider{
		structuredDocs: map[string]string{"research_brief": briefDoc},
		turns: []engineTurn{
			{calls: []*protocol.ToolCall{delegate("c1", "how does HNSW layering work")}},
			{calls: []*protocol.ToolCall{complete("c2")}},
		},
	}
	workerModel := &scriptedProvider{
		structuredDocs: map[string]string{
			"compressed_findings": `{"claims": [{"text": "HNSW searches a hierarchy of proximity graphs", "source_indices": [1]}]}`,
		},
		turns: []engineTurn{
			{calls: []*protocol.ToolCall{searchCall("w1", "hnsw layering")}},
			{text: "enough evidence collected"},
		},
	}
	summarizationModel := &scriptedProvider{
		structuredDocs: map[string]string{
			"webpage_summary": `{"summary": "HNSW builds layered proximity graphs.", "key_excerpts": ["layered graphs"]}`,
		},
	}
	reportModel := &scriptedProvider{turns: []engineTurn{
		{text: "# HNSW\n\nHNSW searches a hierarchy of proximity graphs [1]."},
	}}
	searchProvider := &cannedSearchProvider{results: []*search.Result{
		{URL: "https://arxiv.org/hnsw", Title: "HNSW Paper", RawContent: "the HNSW paper text"},
	}}

	engine := newTestEngine(t, &config.Config{}, supervisorModel, workerModel,
		summarizationModel, reportModel, searchProvider)

	outcome, err := engine.Research(context.Background(), "What is HNSW?")

	require.NoError(t, err)
	assert.False(t, outcome.ClarificationNeeded)
	assert.Equal(t, "Explain HNSW indexes", outcome.Brief.Question)

	rep := outcome.Report
	require.NotNil(t, rep)
	assert.Equal(t, "done_by_model", rep.Terminal)
	assert.False(t, rep.Truncated)
	assert.Contains(t, rep.Markdown, "[1]")
	assert.Contains(t, rep.Markdown, "## Sources")
	assert.Contains(t, rep.Markdown, "1. HNSW Paper (https://arxiv.org/hnsw)")
	require.Len(t, rep.Sources, 1)
	assert.Equal(t, "https://arxiv.org/hnsw", rep.Sources[0].URL)

	assert.Equal(t, 1, summarizationModel.structuredCalls, "one page summarized")
}

func TestResearchClarificationShortCircuits(t *testing.T) {
	supervisorModel := &scriptedProvider{
		structuredDocs: map[string]string{
			"clarify_decision": `{"need_clarification": true, "question": "Which aspect of HNSW?"}`,
		},
	}
	workerModel := &scriptedProvider{}
	cfg := &config.Config{AllowClarification: true}

	engine := newTestEngine(t, cfg, supervisorModel, workerModel,
		&scriptedProvider{}, &scriptedProvider{}, &cannedSearchProvider{})

	outcome, err := engine.Research(context.Background(), "HNSW?")

	require.NoError(t, err)
	assert.True(t, outcome.ClarificationNeeded)
	assert.Equal(t, "Which aspect of HNSW?", outcome.Clarification)
	assert.Nil(t, outcome.Report)
	assert.Zero(t, supervisorModel.generateCalls, "no research loop ran")
	assert.Zero(t, workerModel.generateCalls)
}

func TestResearchClarificationDisabledSkipsPhase(t *testing.T) {
	supervisorModel := &scriptedProvider{
		structuredDocs: map[string]string{"research_brief": briefDoc},
		turns:          []engineTurn{{text: "nothing to research"}},
	}
	reportModel := &scriptedProvider{turns: []engineTurn{{text: "Short answer."}}}

	engine := newTestEngine(t, &config.Config{}, supervisorModel, &scriptedProvider{},
		&scriptedProvider{}, reportModel, &cannedSearchProvider{})

	outcome, err := engine.Research(context.Background(), "What is HNSW?")

	require.NoError(t, err)
	require.NotNil(t, outcome.Report)
	assert.Equal(t, 1, supervisorModel.structuredCalls, "brief only, no clarify call")
}

func TestResearchBriefFailureRunsNoWorkers(t *testing.T) {
	supervisorModel := &scriptedProvider{
		structuredDocs: map[string]string{"research_brief": "not json"},
	}
	workerModel := &scriptedProvider{}
	reportModel := &scriptedProvider{}

	engine := newTestEngine(t, &config.Config{}, supervisorModel, workerModel,
		&scriptedProvider{}, reportModel, &cannedSearchProvider{})

	outcome, err := engine.Research(context.Background(), "What is HNSW?")

	var soErr *llms.StructuredOutputError
	require.ErrorAs(t, err, &soErr)
	assert.Nil(t, outcome)
	assert.Zero(t, workerModel.generateCalls)
	assert.Zero(t, reportModel.generateCalls)
}

func TestResearchBudgetExhaustionFlagsReport(t *testing.T) {
	var turns []engineTurn
	for i := 0; i < 10; i++ {
		turns = append(turns, engineTurn{calls: []*protocol.ToolCall{delegate("c", "unit")}})
	}
	supervisorModel := &scriptedProvider{
		structuredDocs: map[string]string{"research_brief": briefDoc},
		turns:          turns,
	}
	// Workers stop immediately without searching
	workerModel := &scriptedProvider{}
	reportModel := &scriptedProvider{turns: []engineTurn{{text: "Partial answer."}}}

	cfg := &config.Config{MaxTotalToolCalls: 2, MaxSupervisorIterations: 10}
	engine := newTestEngine(t, cfg, supervisorModel, workerModel,
		&scriptedProvider{}, reportModel, &cannedSearchProvider{})

	outcome, err := engine.Research(context.Background(), "What is HNSW?")

	require.NoError(t, err)
	require.NotNil(t, outcome.Report)
	assert.True(t, outcome.Report.Truncated)
	assert.Equal(t, "done_by_tool_budget", outcome.Report.Terminal)
}

func TestResearchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	supervisorModel := &scriptedProvider{
		structuredDocs: map[string]string{"research_brief": briefDoc},
		turns: []engineTurn{
			{calls: []*protocol.ToolCall{delegate("c1", "unit")}},
		},
	}
	// The worker's first model call cancels the session and blocks until the
	// context reports it.
	workerModel := &scriptedProvider{
		onGenerate: func(ctx context.Context) error {
			cancel()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	}
	reportModel := &scriptedProvider{}

	engine := newTestEngine(t, &config.Config{}, supervisorModel, workerModel,
		&scriptedProvider{}, reportModel, &cannedSearchProvider{})

	outcome, err := engine.Research(ctx, "What is HNSW?")

	require.ErrorIs(t, err, research.ErrCancelled)
	assert.Nil(t, outcome)
	assert.Zero(t, reportModel.generateCalls, "no report after cancellation")
}

func TestResearchRequiresUserMessage(t *testing.T) {
	engine := newTestEngine(t, &config.Config{}, &scriptedProvider{}, &scriptedProvider{},
		&scriptedProvider{}, &scriptedProvider{}, &cannedSearchProvider{})

	_, err := engine.ResearchConversation(context.Background(), nil)
	require.Error(t, err)
}

func TestNewValidatesConfigWithoutInjectedProviders(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := &config.Config{}
	cfg.SupervisorModel.Provider = config.LLMProviderOpenAI

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

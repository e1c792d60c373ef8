package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepresearch/pkg/llms"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
	"github.com/kadirpekel/deepresearch/pkg/research"
)

type scriptedReportModel struct {
	replies []string
	calls   int
}

func (m *scriptedReportModel) Generate(ctx context.Context, messages []*protocol.Message, tools []llms.ToolDefinition) (string, []*protocol.ToolCall, int, error) {
	reply := ""
	if m.calls < len(m.replies) {
		reply = m.replies[m.calls]
	}
	m.calls++
	return reply, nil, 10, nil
}

func (m *scriptedReportModel) GenerateStructured(ctx context.Context, messages []*protocol.Message, structConfig *llms.StructuredOutputConfig) (string, int, error) {
	return "", 0, nil
}

func (m *scriptedReportModel) Capabilities() llms.Capabilities { return llms.Capabilities{} }
func (m *scriptedReportModel) GetModelName() string            { return "report-model" }
func (m *scriptedReportModel) GetContextWindow() int           { return 128000 }
func (m *scriptedReportModel) Close() error                    { return nil }

func findingsFixture() []*research.Findings {
	return []*research.Findings{
		{
			TaskID:         "t1",
			CompressedText: "- HNSW uses layered graphs [1]\n- Search starts at the top layer [1,2]",
			Sources: []research.Source{
				{URL: "https://arxiv.org/hnsw", Title: "HNSW Paper"},
				{URL: "https://blog.test/hnsw", Title: "HNSW Blog"},
			},
			Status: research.StatusComplete,
		},
		{
			TaskID:         "t2",
			CompressedText: "- Many vector stores build on HNSW [1]",
			Sources: []research.Source{
				// Same URL as the first finding's second source
				{URL: "https://blog.test/hnsw", Title: "HNSW Blog"},
			},
			Status: research.StatusComplete,
		},
	}
}

func TestAggregateSourcesRemapsCitations(t *testing.T) {
	sources, remapped := aggregateSources(findingsFixture())

	require.Len(t, sources, 2, "shared URL is deduplicated globally")
	assert.Equal(t, "https://arxiv.org/hnsw", sources[0].URL)
	assert.Equal(t, "https://blog.test/hnsw", sources[1].URL)

	assert.Contains(t, remapped[0].CompressedText, "[1,2]")
	// The second finding's local [1] now points at global source 2
	assert.Equal(t, "- Many vector stores build on HNSW [2]", remapped[1].CompressedText)
}

func TestSynthesizeHappyPath(t *testing.T) {
	model := &scriptedReportModel{replies: []string{
		"# HNSW\n\nHNSW is a layered graph index [1]. It is widely used [2].",
	}}
	s := NewSynthesizer(llms.NewAdapter(model), "English")

	report, err := s.Synthesize(context.Background(),
		&research.Brief{Question: "What is HNSW?"}, findingsFixture())

	require.NoError(t, err)
	assert.Equal(t, 1, model.calls, "valid citations need no re-invocation")
	assert.Contains(t, report.Markdown, "## Sources")
	assert.Contains(t, report.Markdown, "1. HNSW Paper (https://arxiv.org/hnsw)")
	assert.Contains(t, report.Markdown, "2. HNSW Blog (https://blog.test/hnsw)")
	require.Len(t, report.Sources, 2)
	assert.Equal(t, "https://arxiv.org/hnsw", report.Sources[0].URL)
}

func TestSynthesizeReinvokesOnInvalidCitation(t *testing.T) {
	model := &scriptedReportModel{replies: []string{
		"HNSW is fast [7].",
		"HNSW is fast [1].",
	}}
	s := NewSynthesizer(llms.NewAdapter(model), "English")

	report, err := s.Synthesize(context.Background(),
		&research.Brief{Question: "What is HNSW?"}, findingsFixture())

	require.NoError(t, err)
	assert.Equal(t, 2, model.calls)
	assert.Contains(t, report.Markdown, "[1]")
	assert.NotContains(t, report.Markdown, "[7]")
	require.Len(t, report.Sources, 1)
}

func TestSynthesizeStripsCitationsStillInvalidAfterRetry(t *testing.T) {
	model := &scriptedReportModel{replies: []string{
		"Claim [9].",
		"Claim [9]. Other claim [2].",
	}}
	s := NewSynthesizer(llms.NewAdapter(model), "English")

	report, err := s.Synthesize(context.Background(),
		&research.Brief{Question: "q"}, findingsFixture())

	require.NoError(t, err)
	assert.NotContains(t, report.Markdown, "[9]")
	assert.Contains(t, report.Markdown, "[2]")
	require.Len(t, report.Sources, 1)
	assert.Equal(t, "https://blog.test/hnsw", report.Sources[0].URL)
}

func TestSynthesizeWithoutFindings(t *testing.T) {
	model := &scriptedReportModel{replies: []string{
		"No research results were available; based on the brief alone, HNSW is a graph index.",
	}}
	s := NewSynthesizer(llms.NewAdapter(model), "English")

	report, err := s.Synthesize(context.Background(),
		&research.Brief{Question: "What is HNSW?"}, nil)

	require.NoError(t, err)
	assert.NotContains(t, report.Markdown, "## Sources")
	assert.Empty(t, report.Sources)
}

func TestCitedIndices(t *testing.T) {
	assert.Equal(t, []int{1, 2, 5}, citedIndices("a [1] b [2,5] c [1]"))
	assert.Empty(t, citedIndices("no citations here"))
}

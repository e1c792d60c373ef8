package search

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/deepresearch/pkg/llms"
	"github.com/kadirpekel/deepresearch/pkg/logger"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
)

const (
	maxSummaryChars = 800
	maxKeyExcerpts  = 5

	summarizeTimeout = 60 * time.Second
)

// webpageSummary is the schema the summarization model fills per result.
type webpageSummary struct {
	Summary     string   `json:"summary" jsonschema:"maxLength=800,description=Concise summary of the page content"`
	KeyExcerpts []string `json:"key_excerpts" jsonschema:"maxItems=5,description=Up to five short verbatim excerpts that support the summary"`
}

var webpageSummarySchema = llms.MustSchemaFor("webpage_summary", &webpageSummary{})

const summarizePromptTemplate = `You are tasked with summarizing the raw content of a webpage retrieved from a web search, for use by a research agent. Preserve concrete facts, numbers, names and dates. Today's date is %s.

<webpage_content>
%s
</webpage_content>`

// Summarizer produces per-result summaries through the model adapter.
// Failures degrade to the result title rather than failing the batch.
type Summarizer struct {
	adapter          *llms.Adapter
	maxContentLength int
	maxConcurrent    int
}

// NewSummarizer wraps the summarization model. maxContentLength truncates raw
// content before prompting; maxConcurrent bounds parallel summarizations.
func NewSummarizer(adapter *llms.Adapter, maxContentLength, maxConcurrent int) *Summarizer {
	if maxContentLength <= 0 {
		maxContentLength = 50000
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Summarizer{
		adapter:          adapter,
		maxContentLength: maxContentLength,
		maxConcurrent:    maxConcurrent,
	}
}

// SummarizeAll fills Summary and KeyExcerpts on every result in place,
// running summarizations in parallel.
func (s *Summarizer) SummarizeAll(ctx context.Context, results []*Result) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for _, result := range results {
		g.Go(func() error {
			s.summarizeOne(gctx, result)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Summarizer) summarizeOne(ctx context.Context, result *Result) {
	if result.RawContent == "" {
		result.Summary = result.Title
		return
	}

	content := truncateChars(result.RawContent, s.maxContentLength)

	ctx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()

	prompt := fmt.Sprintf(summarizePromptTemplate, time.Now().Format("Mon Jan 2, 2006"), content)

	var summary webpageSummary
	err := s.adapter.CompleteStructuredInto(ctx,
		[]*protocol.Message{protocol.NewUserMessage(prompt)},
		webpageSummarySchema, &summary)
	if err != nil {
		logger.GetLogger().Warn("summarization failed, degrading to raw result",
			"url", result.URL, "error", err)
		result.Summary = result.Title
		result.KeyExcerpts = nil
		return
	}

	summary.Summary = truncateChars(summary.Summary, maxSummaryChars)
	if len(summary.KeyExcerpts) > maxKeyExcerpts {
		summary.KeyExcerpts = summary.KeyExcerpts[:maxKeyExcerpts]
	}

	result.Summary = summary.Summary
	result.KeyExcerpts = summary.KeyExcerpts
}

// truncateChars caps a string at max characters. Budgets are in characters,
// so a multi-byte rune is never split.
func truncateChars(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

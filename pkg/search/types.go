// Package search implements the search provider: querying a SearXNG
// endpoint, deduplicating results by URL and producing per-result summaries
// through the model adapter. Individual query failures degrade to batch
// metadata; summarization failures degrade to the raw result.
package search

import (
	"context"
	"time"
)

// Result is one fetched search hit. Summary and KeyExcerpts are produced by
// the summarization model from RawContent; when summarization fails they
// degrade to the title and nothing.
type Result struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	RawContent  string    `json:"raw_content"`
	Summary     string    `json:"summary"`
	KeyExcerpts []string  `json:"key_excerpts"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Batch is one request against the provider: an ordered, non-empty list of
// queries.
type Batch struct {
	Queries            []string `json:"queries"`
	MaxResultsPerQuery int      `json:"max_results_per_query"`
}

// BatchResult carries the deduplicated results plus per-query errors.
// A failed query never aborts its siblings; it is recorded here instead.
type BatchResult struct {
	Results     []*Result         `json:"results"`
	QueryErrors map[string]string `json:"query_errors,omitempty"`
}

// Provider fetches raw results for a batch. Implementations must preserve
// input query order as the primary result order and deduplicate by URL.
type Provider interface {
	Search(ctx context.Context, batch *Batch) (*BatchResult, error)
}

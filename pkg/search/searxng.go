package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/deepresearch/pkg/config"
	"github.com/kadirpekel/deepresearch/pkg/httpclient"
	"github.com/kadirpekel/deepresearch/pkg/logger"
	"github.com/kadirpekel/deepresearch/pkg/observability"
)

// SearXNGProvider queries a SearXNG metasearch endpoint:
// GET {base}/search?q=<query>&format=json.
type SearXNGProvider struct {
	config     *config.SearchConfig
	httpClient *httpclient.Client
	endpoint   string
}

type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

type searxngResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NewSearXNGProviderFromConfig creates a provider from a validated config.
func NewSearXNGProviderFromConfig(cfg *config.SearchConfig) (*SearXNGProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("searxng provider requires an endpoint")
	}

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithMaxRetries(cfg.TransportRetries),
	)

	return &SearXNGProvider{
		config:     cfg,
		httpClient: httpClient,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
	}, nil
}

// Search runs every query in the batch with bounded parallelism, then
// flattens results in query order, keeping the first occurrence of each URL.
func (p *SearXNGProvider) Search(ctx context.Context, batch *Batch) (*BatchResult, error) {
	if batch == nil || len(batch.Queries) == 0 {
		return nil, fmt.Errorf("search batch must contain at least one query")
	}

	maxResults := batch.MaxResultsPerQuery
	if maxResults <= 0 {
		maxResults = p.config.MaxResultsPerQuery
	}

	perQuery := make([][]*Result, len(batch.Queries))
	var mu sync.Mutex
	queryErrors := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxConcurrentQueries)

	for i, query := range batch.Queries {
		g.Go(func() error {
			results, err := p.searchOne(gctx, query, maxResults)
			if err != nil {
				logger.GetLogger().Warn("search query failed", "query", query, "error", err)
				mu.Lock()
				queryErrors[query] = err.Error()
				mu.Unlock()
				// Sibling queries keep running
				return nil
			}
			perQuery[i] = results
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Flatten in query order, first URL occurrence wins
	seen := make(map[string]bool)
	var flat []*Result
	for _, results := range perQuery {
		for _, r := range results {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			flat = append(flat, r)
		}
	}

	out := &BatchResult{Results: flat}
	if len(queryErrors) > 0 {
		out.QueryErrors = queryErrors
	}
	return out, nil
}

func (p *SearXNGProvider) searchOne(ctx context.Context, query string, maxResults int) ([]*Result, error) {
	tracer := observability.GetTracer("deepresearch.search")
	ctx, span := tracer.Start(ctx, observability.SpanSearchQuery)
	defer span.End()

	observability.GetGlobalMetrics().RecordSearchQuery(ctx)

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("pageno", "1")

	req, err := http.NewRequestWithContext(ctx, "GET", p.endpoint+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search request failed with status %d: %s", resp.StatusCode, body)
	}

	var decoded searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	if len(decoded.Results) > maxResults {
		decoded.Results = decoded.Results[:maxResults]
	}

	now := time.Now().UTC()
	results := make([]*Result, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		title := r.Title
		if title == "" {
			title = "No title"
		}
		results = append(results, &Result{
			URL:        r.URL,
			Title:      title,
			RawContent: strings.TrimSpace(title + "\n" + r.Content),
			FetchedAt:  now,
		})
	}
	return results, nil
}

package search

import (
	"context"

	"github.com/kadirpekel/deepresearch/pkg/config"
	"github.com/kadirpekel/deepresearch/pkg/llms"
)

// Service is the full search pipeline: fetch, dedupe, summarize.
type Service struct {
	provider   Provider
	summarizer *Summarizer
}

// NewService wires a provider to a summarizer.
func NewService(provider Provider, summarizer *Summarizer) *Service {
	return &Service{provider: provider, summarizer: summarizer}
}

// NewServiceFromConfig builds the SearXNG pipeline using the given
// summarization adapter.
func NewServiceFromConfig(cfg *config.SearchConfig, summarizationAdapter *llms.Adapter) (*Service, error) {
	provider, err := NewSearXNGProviderFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	summarizer := NewSummarizer(summarizationAdapter, cfg.MaxContentLength, cfg.MaxConcurrentQueries)
	return NewService(provider, summarizer), nil
}

// Execute runs the batch and summarizes every unique result. Query failures
// surface in the BatchResult metadata, summarization failures degrade per
// result; only an empty batch or a context cancellation fails the call.
func (s *Service) Execute(ctx context.Context, batch *Batch) (*BatchResult, error) {
	batchResult, err := s.provider.Search(ctx, batch)
	if err != nil {
		return nil, err
	}

	s.summarizer.SummarizeAll(ctx, batchResult.Results)
	return batchResult, nil
}

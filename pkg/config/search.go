package config

import (
	"fmt"
	"time"
)

// SearchProvider identifies the search backend type.
type SearchProvider string

const (
	// SearchProviderSearXNG queries a SearXNG-compatible metasearch endpoint
	// (GET {base}/search?q=<query>&format=json).
	SearchProviderSearXNG SearchProvider = "searxng"
)

// SearchConfig configures the web search backend.
type SearchConfig struct {
	// Provider type. Only searxng-compatible endpoints are supported.
	Provider SearchProvider `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Endpoint is the search service base URL.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// MaxResultsPerQuery caps results taken from each query.
	MaxResultsPerQuery int `yaml:"max_results_per_query,omitempty" json:"max_results_per_query,omitempty"`

	// MaxContentLength truncates raw page content before summarization.
	MaxContentLength int `yaml:"max_content_length,omitempty" json:"max_content_length,omitempty"`

	// MaxConcurrentQueries bounds parallel requests to the search service.
	MaxConcurrentQueries int `yaml:"max_concurrent_queries,omitempty" json:"max_concurrent_queries,omitempty"`

	// Timeout for a single search request.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// TransportRetries bounds retries of transport-level failures.
	TransportRetries int `yaml:"transport_retries,omitempty" json:"transport_retries,omitempty"`
}

// SetDefaults applies default values.
func (c *SearchConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = SearchProviderSearXNG
	}
	if c.Endpoint == "" {
		c.Endpoint = "http://localhost:8888"
	}
	if c.MaxResultsPerQuery == 0 {
		c.MaxResultsPerQuery = 5
	}
	if c.MaxContentLength == 0 {
		c.MaxContentLength = 50000
	}
	if c.MaxConcurrentQueries == 0 {
		c.MaxConcurrentQueries = 4
	}
	if c.Timeout == 0 {
		c.Timeout = 20 * time.Second
	}
	if c.TransportRetries == 0 {
		c.TransportRetries = 3
	}
}

// Validate checks the search configuration.
func (c *SearchConfig) Validate() error {
	if c.Provider != "" && c.Provider != SearchProviderSearXNG {
		return fmt.Errorf("invalid search provider %q (valid: searxng)", c.Provider)
	}
	if c.Endpoint == "" {
		return fmt.Errorf("search endpoint is required")
	}
	if c.MaxResultsPerQuery < 0 {
		return fmt.Errorf("max_results_per_query must be positive")
	}
	if c.MaxContentLength < 0 {
		return fmt.Errorf("max_content_length must be positive")
	}
	return nil
}

// Package config defines the configuration surface of the research engine.
// Every struct follows the SetDefaults/Validate convention: zero values are
// filled in by SetDefaults, then Validate rejects anything inconsistent.
package config

import "fmt"

// Config is the full engine configuration. One Config is passed into the
// supervisor at construction; nothing reads configuration globally.
type Config struct {
	// Per-phase backend selection.
	SupervisorModel    LLMConfig `yaml:"supervisor_model,omitempty" json:"supervisor_model,omitempty"`
	WorkerModel        LLMConfig `yaml:"worker_model,omitempty" json:"worker_model,omitempty"`
	SummarizationModel LLMConfig `yaml:"summarization_model,omitempty" json:"summarization_model,omitempty"`
	FinalReportModel   LLMConfig `yaml:"final_report_model,omitempty" json:"final_report_model,omitempty"`

	// Search backend.
	Search SearchConfig `yaml:"search,omitempty" json:"search,omitempty"`

	// MaxConcurrentUnits caps parallel workers within one supervisor batch.
	MaxConcurrentUnits int `yaml:"max_concurrent_units,omitempty" json:"max_concurrent_units,omitempty"`

	// MaxSupervisorIterations caps the supervisor reflect/delegate loop.
	MaxSupervisorIterations int `yaml:"max_supervisor_iterations,omitempty" json:"max_supervisor_iterations,omitempty"`

	// MaxWorkerIterations caps each worker's search loop.
	MaxWorkerIterations int `yaml:"max_worker_iterations,omitempty" json:"max_worker_iterations,omitempty"`

	// MaxTotalToolCalls is the session-wide supervisor tool-call budget.
	MaxTotalToolCalls int `yaml:"max_total_tool_calls,omitempty" json:"max_total_tool_calls,omitempty"`

	// MaxWorkerToolCalls is the per-worker cumulative tool-call budget.
	MaxWorkerToolCalls int `yaml:"max_worker_tool_calls,omitempty" json:"max_worker_tool_calls,omitempty"`

	// MaxStructuredRetries bounds re-prompts when a structured output fails
	// validation.
	MaxStructuredRetries int `yaml:"max_structured_retries,omitempty" json:"max_structured_retries,omitempty"`

	// MaxTransportRetries bounds retries of transport-level failures.
	MaxTransportRetries int `yaml:"max_transport_retries,omitempty" json:"max_transport_retries,omitempty"`

	// AllowClarification enables the pre-research clarify phase.
	AllowClarification bool `yaml:"allow_clarification,omitempty" json:"allow_clarification,omitempty"`

	// ResponseLanguage instructs all prompts to answer in this language.
	ResponseLanguage string `yaml:"response_language,omitempty" json:"response_language,omitempty"`
}

// SetDefaults applies defaults to the top-level config and every sub-config.
func (c *Config) SetDefaults() {
	if c.MaxTransportRetries == 0 {
		c.MaxTransportRetries = 3
	}

	// The session-wide retry bound seeds every backend that did not set its own
	for _, m := range []*LLMConfig{
		&c.SupervisorModel, &c.WorkerModel, &c.SummarizationModel, &c.FinalReportModel,
	} {
		if m.TransportRetries == 0 {
			m.TransportRetries = c.MaxTransportRetries
		}
		m.SetDefaults()
	}
	if c.Search.TransportRetries == 0 {
		c.Search.TransportRetries = c.MaxTransportRetries
	}
	c.Search.SetDefaults()

	if c.MaxConcurrentUnits == 0 {
		c.MaxConcurrentUnits = 3
	}
	if c.MaxSupervisorIterations == 0 {
		c.MaxSupervisorIterations = 6
	}
	if c.MaxWorkerIterations == 0 {
		c.MaxWorkerIterations = 5
	}
	if c.MaxTotalToolCalls == 0 {
		c.MaxTotalToolCalls = 10
	}
	if c.MaxWorkerToolCalls == 0 {
		c.MaxWorkerToolCalls = 8
	}
	if c.MaxStructuredRetries == 0 {
		c.MaxStructuredRetries = 3
	}
	if c.ResponseLanguage == "" {
		c.ResponseLanguage = "English"
	}
}

// Validate checks the whole configuration tree.
func (c *Config) Validate() error {
	models := map[string]*LLMConfig{
		"supervisor_model":    &c.SupervisorModel,
		"worker_model":        &c.WorkerModel,
		"summarization_model": &c.SummarizationModel,
		"final_report_model":  &c.FinalReportModel,
	}
	for name, m := range models {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if c.MaxConcurrentUnits < 1 {
		return fmt.Errorf("max_concurrent_units must be >= 1")
	}
	if c.MaxSupervisorIterations < 1 {
		return fmt.Errorf("max_supervisor_iterations must be >= 1")
	}
	if c.MaxWorkerIterations < 1 {
		return fmt.Errorf("max_worker_iterations must be >= 1")
	}
	if c.MaxTotalToolCalls < 1 {
		return fmt.Errorf("max_total_tool_calls must be >= 1")
	}
	if c.MaxWorkerToolCalls < 1 {
		return fmt.Errorf("max_worker_tool_calls must be >= 1")
	}

	return nil
}

// BoolPtr returns a pointer to the given bool. Used for optional flags.
func BoolPtr(b bool) *bool {
	return &b
}

// FloatPtr returns a pointer to the given float64.
func FloatPtr(f float64) *float64 {
	return &f
}

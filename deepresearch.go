package deepresearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/kadirpekel/deepresearch/pkg/agent"
	"github.com/kadirpekel/deepresearch/pkg/config"
	"github.com/kadirpekel/deepresearch/pkg/llms"
	"github.com/kadirpekel/deepresearch/pkg/logger"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
	"github.com/kadirpekel/deepresearch/pkg/report"
	"github.com/kadirpekel/deepresearch/pkg/research"
	"github.com/kadirpekel/deepresearch/pkg/search"
	"github.com/kadirpekel/deepresearch/pkg/supervisor"
)

// Engine is the research orchestrator: clarification, brief construction,
// the supervisor loop and final report synthesis behind one entry point.
// One Engine is safe for concurrent Research calls; all per-session state
// lives inside Research.
type Engine struct {
	cfg         *config.Config
	supervisor  *supervisor.Supervisor
	synthesizer *report.Synthesizer
}

// Outcome is the result of one research session. Exactly one of
// Clarification and Report is set: when the engine needs more input from the
// user, ClarificationNeeded is true and no research has run yet.
type Outcome struct {
	// ClarificationNeeded signals that research did not start because the
	// question was too ambiguous.
	ClarificationNeeded bool `json:"clarification_needed,omitempty"`

	// Clarification is the question to relay back to the user.
	Clarification string `json:"clarification,omitempty"`

	// Brief is the distilled research brief the session ran against.
	Brief *research.Brief `json:"brief,omitempty"`

	// Report is the final deliverable.
	Report *report.Report `json:"report,omitempty"`
}

// Option customizes engine construction. Backends default to what the
// configuration names; options inject custom implementations in their place.
type Option func(*options)

type options struct {
	supervisorProvider    llms.Provider
	workerProvider        llms.Provider
	summarizationProvider llms.Provider
	reportProvider        llms.Provider
	searchProvider        search.Provider
}

// WithSupervisorProvider replaces the config-built supervisor backend.
func WithSupervisorProvider(p llms.Provider) Option {
	return func(o *options) { o.supervisorProvider = p }
}

// WithWorkerProvider replaces the config-built worker backend.
func WithWorkerProvider(p llms.Provider) Option {
	return func(o *options) { o.workerProvider = p }
}

// WithSummarizationProvider replaces the config-built summarization backend.
func WithSummarizationProvider(p llms.Provider) Option {
	return func(o *options) { o.summarizationProvider = p }
}

// WithReportProvider replaces the config-built final-report backend.
func WithReportProvider(p llms.Provider) Option {
	return func(o *options) { o.reportProvider = p }
}

// WithSearchProvider replaces the config-built SearXNG search backend.
func WithSearchProvider(p search.Provider) Option {
	return func(o *options) { o.searchProvider = p }
}

// New builds an engine from the configuration. Defaults are applied and the
// configuration is validated before anything is constructed.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.SetDefaults()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// Injected backends exempt their phase (and the search pipeline) from
	// config validation: an all-custom engine needs no API keys at all.
	if o.supervisorProvider == nil || o.workerProvider == nil ||
		o.summarizationProvider == nil || o.reportProvider == nil {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	retries := llms.WithStructuredRetries(cfg.MaxStructuredRetries)

	supervisorAdapter, err := buildAdapter(&cfg.SupervisorModel, o.supervisorProvider, retries)
	if err != nil {
		return nil, fmt.Errorf("supervisor model: %w", err)
	}
	workerAdapter, err := buildAdapter(&cfg.WorkerModel, o.workerProvider, retries)
	if err != nil {
		return nil, fmt.Errorf("worker model: %w", err)
	}
	summarizationAdapter, err := buildAdapter(&cfg.SummarizationModel, o.summarizationProvider, retries)
	if err != nil {
		return nil, fmt.Errorf("summarization model: %w", err)
	}
	reportAdapter, err := buildAdapter(&cfg.FinalReportModel, o.reportProvider, retries)
	if err != nil {
		return nil, fmt.Errorf("final report model: %w", err)
	}

	var searchService *search.Service
	if o.searchProvider != nil {
		summarizer := search.NewSummarizer(summarizationAdapter,
			cfg.Search.MaxContentLength, cfg.Search.MaxConcurrentQueries)
		searchService = search.NewService(o.searchProvider, summarizer)
	} else {
		searchService, err = search.NewServiceFromConfig(&cfg.Search, summarizationAdapter)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
	}

	worker := agent.NewWorker(workerAdapter, searchService, cfg.ResponseLanguage)

	return &Engine{
		cfg:         cfg,
		supervisor:  supervisor.NewSupervisor(supervisorAdapter, worker, cfg),
		synthesizer: report.NewSynthesizer(reportAdapter, cfg.ResponseLanguage),
	}, nil
}

func buildAdapter(cfg *config.LLMConfig, injected llms.Provider, opts ...llms.AdapterOption) (*llms.Adapter, error) {
	if injected != nil {
		return llms.NewAdapter(injected, opts...), nil
	}
	return llms.NewAdapterFromConfig(cfg, opts...)
}

// Research runs one full session over a single question.
func (e *Engine) Research(ctx context.Context, question string) (*Outcome, error) {
	return e.ResearchConversation(ctx, []*protocol.Message{protocol.NewUserMessage(question)})
}

// ResearchConversation runs one full session over a user conversation, so a
// caller can answer a clarification question and resume with the extended
// message history.
func (e *Engine) ResearchConversation(ctx context.Context, messages []*protocol.Message) (*Outcome, error) {
	if protocol.LastUserText(messages) == "" {
		return nil, fmt.Errorf("research requires at least one user message")
	}

	log := logger.GetLogger()

	if e.cfg.AllowClarification {
		decision, err := e.supervisor.Clarify(ctx, messages)
		if err != nil {
			return nil, e.cancelOr(ctx, err)
		}
		if decision.NeedClarification {
			log.Info("research paused for clarification")
			return &Outcome{
				ClarificationNeeded: true,
				Clarification:       decision.Question,
			}, nil
		}
	}

	brief, err := e.supervisor.BuildBrief(ctx, messages)
	if err != nil {
		return nil, e.cancelOr(ctx, err)
	}
	log.Info("research brief built", "question", brief.Question)

	result, err := e.supervisor.Run(ctx, brief)
	if err != nil {
		return nil, err
	}

	rep, err := e.synthesizer.Synthesize(ctx, brief, result.Findings)
	if err != nil {
		return nil, e.cancelOr(ctx, err)
	}
	rep.Truncated = result.Terminal.Truncated()
	rep.Terminal = string(result.Terminal)

	log.Info("research finished",
		"terminal", result.Terminal,
		"units", len(result.Findings),
		"sources", len(rep.Sources))

	return &Outcome{Brief: brief, Report: rep}, nil
}

// cancelOr maps context cancellation onto the session-level sentinel so
// callers see one error for every cancellation path.
func (e *Engine) cancelOr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return research.ErrCancelled
	}
	return err
}

// Package deepresearch implements a multi-agent deep research engine: a
// supervisor model decomposes a research question into independent units,
// fans them out to bounded worker researchers backed by web search, and a
// synthesizer turns the compressed findings into a cited markdown report.
//
// # Quick Start
//
//	cfg := &config.Config{}
//	cfg.SupervisorModel = config.LLMConfig{Provider: config.LLMProviderOpenAI, Model: "gpt-4o"}
//
//	engine, err := deepresearch.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	outcome, err := engine.Research(ctx, "How do HNSW indexes trade recall for latency?")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(outcome.Report.Markdown)
//
// Every model phase (supervisor, worker, summarization, final report) can
// point at a different backend, and each backend is adapted to its
// capabilities: models without native structured output are driven through
// JSON extraction with corrective retries, and models without native tool
// calling are driven through a ReAct text protocol.
package deepresearch

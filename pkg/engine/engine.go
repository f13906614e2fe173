// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"graphreasoner/pkg/agent"
	"graphreasoner/pkg/embedding"
	"graphreasoner/pkg/embedding/openaiembed"
	"graphreasoner/pkg/errkind"
	"graphreasoner/pkg/graph"
	"graphreasoner/pkg/llm"
	"graphreasoner/pkg/llm/openaillm"
	"graphreasoner/pkg/plan"
	"graphreasoner/pkg/reason"
	"graphreasoner/pkg/schema"
	"graphreasoner/pkg/scheduler"
	"graphreasoner/pkg/search"
)

// defaultSeedCandidates is how many entities SearchEntities considers
// before filtering down to seeds above EntityThreshold.
const defaultSeedCandidates = 5

// Engine is the reasoning system's single entry point: it owns the graph
// adapter, embedding and LLM clients, schema analyzer, search engine,
// scheduler, reasoner, and multi-agent coordinator, and exposes the
// question-answering façade external callers use.
type Engine struct {
	config *Config

	store        graph.Store
	embedder     embedding.Embedder
	llmClient    llm.Provider
	analyzer     *schema.Analyzer
	searchEngine *search.Engine
	scheduler    *scheduler.Scheduler
	reasoner     *reason.Reasoner
	coordinator  *agent.Coordinator

	meterProvider *sdkmetric.MeterProvider
	logger        *slog.Logger
}

// New wires together C1-C9 from config and starts the scheduler and agent
// pool. config.Store is required; config.Embedding and config.LLM may be
// nil, in which case the engine degrades to text-similarity search and
// deterministic answer synthesis respectively.
func New(ctx context.Context, config *Config) (*Engine, error) {
	if config == nil || config.Store == nil {
		return nil, errkind.New(errkind.InvalidInput, "config.Store is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var embedder embedding.Embedder
	if config.Embedding != nil {
		built, err := buildEmbedder(config.Embedding)
		if err != nil {
			return nil, err
		}
		embedder = embedding.NewCache(built, config.EmbeddingCacheSize)
	}

	var llmClient llm.Provider
	if config.LLM != nil {
		built, err := buildLLM(config.LLM)
		if err != nil {
			return nil, err
		}
		llmClient = built
	}

	searchEngine := search.NewEngine(config.Store, embedder, nil, nil)

	analyzerConfig := &schema.AnalyzerConfig{
		MinStrategyConfidence: 0.3,
		CacheTTL:              5 * time.Minute,
		StrategyCacheEnabled:  config.StrategyCacheEnabled,
	}
	analyzer := schema.NewAnalyzer(config.Store, searchEngine, analyzerConfig)
	searchEngine.SetAnalyzer(analyzer)

	// The Prometheus exporter turns the scheduler's OTel counters into a
	// pull-based metrics registry; scraping it over HTTP is left to the
	// embedding application, since this package has no server of its own.
	promExporter, err := prometheus.New()
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, "create prometheus exporter", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter))

	sched := scheduler.New(&scheduler.Config{
		MainPoolSize: config.ThreadPoolSize,
		Meter:        meterProvider.Meter("graphreasoner/scheduler"),
	})

	reasoner := reason.NewReasoner(config.Store, searchEngine, llmClient)
	reasoner.SetLoadSignal(sched)

	coordinator := agent.NewCoordinator()
	coordinator.RegisterAgent(agent.NewEntitySearchAgent(config.Store, searchEngine))
	coordinator.RegisterAgent(agent.NewRelationshipAnalysisAgent(config.Store))
	coordinator.RegisterAgent(agent.NewReasoningCoordinatorAgent(coordinator, llmClient))
	if err := coordinator.InitializeAll(ctx); err != nil {
		logger.Error("agent pool initialization failed", "error", err)
		return nil, err
	}

	logger.Info("engine ready",
		"embedding_enabled", embedder != nil,
		"llm_enabled", llmClient != nil,
		"thread_pool_size", config.ThreadPoolSize,
	)

	return &Engine{
		config:        config,
		store:         config.Store,
		embedder:      embedder,
		llmClient:     llmClient,
		analyzer:      analyzer,
		searchEngine:  searchEngine,
		scheduler:     sched,
		reasoner:      reasoner,
		coordinator:   coordinator,
		meterProvider: meterProvider,
		logger:        logger,
	}, nil
}

func buildEmbedder(config *EmbeddingProviderConfig) (embedding.Embedder, error) {
	switch config.Provider {
	case "openai":
		return openaiembed.New(config.APIKey, &openaiembed.Config{Model: config.Model})
	default:
		return nil, errkind.New(errkind.InvalidInput, "unsupported embedding provider: "+config.Provider)
	}
}

func buildLLM(config *LLMProviderConfig) (llm.Provider, error) {
	switch config.Provider {
	case "openai":
		return openaillm.New(config.APIKey, config.Model, nil)
	default:
		return nil, errkind.New(errkind.InvalidInput, "unsupported LLM provider: "+config.Provider)
	}
}

// Reason answers question synchronously: it identifies seed entities, then
// runs the multi-hop reasoner to produce a ReasoningResult.
func (e *Engine) Reason(ctx context.Context, question string) (*reason.Result, error) {
	seeds, err := e.seeds(ctx, question, defaultSeedCandidates)
	if err != nil {
		e.logger.Error("seed search failed", "question", question, "error", err)
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, errkind.New(errkind.InvalidInput, "no seed entities found for question")
	}
	category := plan.Classify(question)
	result, err := e.reasoner.Reason(ctx, question, category, seeds, e.reasonConfig(0))
	if err != nil {
		e.logger.Error("reasoning failed", "question", question, "error", err)
	} else if len(result.Warnings) > 0 {
		e.logger.Warn("reasoning completed with warnings", "question", question, "warnings", result.Warnings)
	}
	return result, err
}

// ReasonAsync submits question to the scheduler and returns a future for
// its ReasoningResult.
func (e *Engine) ReasonAsync(ctx context.Context, question string) (*scheduler.Future, error) {
	task := scheduler.NewTask(scheduler.Traversal, e.config.WallClockBudget, func(taskCtx context.Context) (interface{}, error) {
		return e.Reason(taskCtx, question)
	})
	return e.scheduler.Submit(ctx, task)
}

// ReasonBatch submits every question in questions independently and
// returns a future for the ordered list of their ReasoningResults.
func (e *Engine) ReasonBatch(ctx context.Context, questions []string) (*scheduler.BatchFuture, error) {
	tasks := make([]scheduler.Task, len(questions))
	for i, q := range questions {
		question := q
		tasks[i] = scheduler.NewTask(scheduler.Traversal, e.config.WallClockBudget, func(taskCtx context.Context) (interface{}, error) {
			return e.Reason(taskCtx, question)
		})
	}
	return e.scheduler.SubmitBatch(ctx, tasks)
}

// ReasonSchemaAware submits question to the scheduler, forcing the
// schema-aware seed-selection path: the schema analyzer's recommended
// strategy both selects seed entities and caps the result's confidence.
func (e *Engine) ReasonSchemaAware(ctx context.Context, question string) (*scheduler.Future, error) {
	task := scheduler.NewTask(scheduler.Traversal, e.config.WallClockBudget, func(taskCtx context.Context) (interface{}, error) {
		return e.reasonSchemaAware(taskCtx, question)
	})
	return e.scheduler.Submit(ctx, task)
}

func (e *Engine) reasonSchemaAware(ctx context.Context, question string) (*reason.Result, error) {
	strategy, err := e.analyzer.RecommendStrategy(ctx, question, nil)
	if err != nil {
		return nil, err
	}

	seeds, err := e.schemaGuidedSeeds(ctx, question, strategy)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		seeds, err = e.seeds(ctx, question, defaultSeedCandidates)
		if err != nil {
			return nil, err
		}
	}
	if len(seeds) == 0 {
		return nil, errkind.New(errkind.InvalidInput, "no seed entities found for question")
	}

	category := plan.Classify(question)
	return e.reasoner.Reason(ctx, question, category, seeds, e.reasonConfig(strategy.Confidence))
}

func (e *Engine) schemaGuidedSeeds(ctx context.Context, question string, strategy *schema.SearchStrategy) ([]graph.Entity, error) {
	if strategy.Kind != schema.StrategyProperty && strategy.Kind != schema.StrategyHybrid {
		return nil, nil
	}
	if strategy.PropertyKey == "" {
		return nil, nil
	}

	var seeds []graph.Entity
	for _, nodeType := range strategy.NodeTypes {
		results, err := e.store.SearchEntitiesByProperty(ctx, nodeType, strategy.PropertyKey, question, defaultSeedCandidates)
		if err != nil {
			return nil, errkind.Wrap(errkind.GraphUnavailable, "schema-aware seed search failed", err)
		}
		seeds = append(seeds, results...)
	}
	return seeds, nil
}

func (e *Engine) seeds(ctx context.Context, question string, limit int) ([]graph.Entity, error) {
	scored, err := e.searchEngine.SearchEntities(ctx, question, limit)
	if err != nil {
		return nil, err
	}

	threshold := e.config.EntityThreshold
	seeds := make([]graph.Entity, 0, len(scored))
	for _, s := range scored {
		if s.Score >= threshold {
			seeds = append(seeds, s.Item)
		}
	}
	if len(seeds) == 0 && len(scored) > 0 {
		// Nothing cleared the threshold; fall back to the single best
		// candidate rather than failing outright.
		seeds = append(seeds, scored[0].Item)
	}
	return seeds, nil
}

func (e *Engine) reasonConfig(strategyConfidence float64) *reason.Config {
	return &reason.Config{
		MaxDepth:           e.config.MaxDepth,
		Width:              e.config.Width,
		EntityThreshold:    e.config.EntityThreshold,
		RelationThreshold:  e.config.RelationThreshold,
		MaxEntities:        e.config.MaxEntities,
		MaxPaths:           e.config.MaxPaths,
		Budget:             e.config.WallClockBudget,
		Temperature:        e.config.Temperature,
		MaxTokens:          e.config.MaxTokens,
		StrategyConfidence: strategyConfidence,
	}
}

// SearchEntities is a diagnostic surface exposing the search engine's
// ranking directly, without running the reasoner.
func (e *Engine) SearchEntities(ctx context.Context, query string, limit int) ([]search.Scored[graph.Entity], error) {
	return e.searchEngine.SearchEntities(ctx, query, limit)
}

// Status reports readiness of the engine's major subsystems.
func (e *Engine) Status() ServiceStatus {
	return ServiceStatus{
		GraphReady:       e.store != nil,
		SearchReady:      e.searchEngine != nil,
		ReasonerReady:    e.reasoner != nil,
		SchemaAwareReady: e.analyzer != nil,
	}
}

// Close performs an orderly shutdown: scheduler first (draining in-flight
// work), then the agent pool, then the graph adapter.
func (e *Engine) Close() error {
	e.logger.Info("engine shutting down")
	e.scheduler.Shutdown(30 * time.Second)
	_ = e.coordinator.ShutdownAll(context.Background())
	if e.meterProvider != nil {
		_ = e.meterProvider.Shutdown(context.Background())
	}
	return e.store.Close()
}

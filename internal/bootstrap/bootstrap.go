package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/legal-assistant/internal/config"
	"github.com/kirillkom/legal-assistant/internal/core/ports"
	"github.com/kirillkom/legal-assistant/internal/core/usecase"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/llm"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/vector/qdrant"
)

type Options struct {
	// Observer receives retrieval and ask outcomes; nil disables them.
	Observer ports.RetrievalObserver
	// PublishTraces connects to NATS and emits a trace event per ask run.
	PublishTraces bool
}

// App holds the retrieval and ask services shared by the API and MCP processes.
type App struct {
	Config config.Config

	SearchUC ports.SearchService
	AskUC    ports.QuestionAnswerer
	Traces   ports.TraceRepository

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	for _, warning := range cfg.Validate() {
		slog.Warn("config_warning", "message", warning)
	}

	app := &App{Config: cfg}
	executor := resilience.NewExecutor(breakerConfig(cfg))

	graph, err := neo4j.New(neo4j.Config{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUsername,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	}, executor)
	if err != nil {
		return nil, fmt.Errorf("init graph store: %w", err)
	}
	app.closers = append(app.closers, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := graph.Close(closeCtx); err != nil {
			slog.Warn("graph_close_failed", "error", err)
		}
	})
	// Retrieval degrades per source, so an unreachable graph is not fatal.
	if err := graph.Ping(ctx); err != nil {
		slog.Warn("graph_unreachable", "uri", cfg.Neo4jURI, "error", err)
	} else if cfg.GraphEnsureIndexes {
		if err := graph.EnsureIndexes(ctx); err != nil {
			slog.Warn("graph_ensure_indexes_failed", "error", err)
		}
	}

	vectors := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection,
		qdrant.WithAPIKey(cfg.QdrantAPIKey),
		qdrant.WithExecutor(executor),
	)

	providers, err := llm.NewProviders(cfg, executor)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init llm providers: %w", err)
	}
	embedder := resilience.NewRetryingEmbedder(providers.Embedder, resilience.NewExecutor(embeddingRetryConfig(cfg)))

	semantic := usecase.NewSemanticRetriever(embedder, vectors, cfg.EmbedMaxInputChars)
	hybrid := usecase.NewHybridSearchUseCase(graph, semantic, usecase.RetrievalLimits{
		PerSourceLimit:   cfg.RetrievalPerSourceLimit,
		FinalContextSize: cfg.RetrievalFinalContextSize,
		SourceTimeout:    cfg.RetrievalSourceTimeout,
		VectorThreshold:  cfg.RetrievalVectorScoreThreshold,
	}, opts.Observer)

	askOpts := usecase.AskOptions{
		DebugAllowed: cfg.AskDebugAllowed,
		Observer:     opts.Observer,
	}
	if opts.PublishTraces {
		if publisher := app.connectPublisher(cfg, executor); publisher != nil {
			askOpts.Publisher = publisher
		}
	}
	if cfg.AskDebugAllowed {
		app.Traces = app.openTraceReader(ctx, cfg)
	}

	app.SearchUC = hybrid
	app.AskUC = usecase.NewAskUseCase(providers.Analyzer, hybrid, providers.Synthesizer, askOpts)
	return app, nil
}

// connectPublisher returns nil when NATS is unavailable; asks still succeed
// without an audit trail.
func (a *App) connectPublisher(cfg config.Config, executor *resilience.Executor) ports.TracePublisher {
	retry := false
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSTraceSubject, nats.Options{
		QueueGroup:           cfg.NATSQueueGroup,
		RetryOnFailedConnect: &retry,
		ResilienceExecutor:   executor,
	})
	if err != nil {
		slog.Warn("trace_publisher_disabled", "url", cfg.NATSURL, "error", err)
		return nil
	}
	a.closers = append(a.closers, queue.Close)
	return queue
}

func (a *App) openTraceReader(ctx context.Context, cfg config.Config) ports.TraceRepository {
	if cfg.PostgresDSN == "" {
		return nil
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		slog.Warn("trace_reader_disabled", "error", err)
		return nil
	}
	repo := postgres.NewTraceRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		slog.Warn("trace_reader_disabled", "error", err)
		_ = db.Close()
		return nil
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	return repo
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Worker holds the trace-audit pipeline.
type Worker struct {
	Config config.Config

	Subscriber ports.TraceSubscriber
	RecordUC   ports.TraceRecorder

	db    *sql.DB
	queue *nats.Queue
}

func NewWorker(ctx context.Context, cfg config.Config) (*Worker, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewTraceRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSTraceSubject, nats.Options{
		QueueGroup: cfg.NATSQueueGroup,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &Worker{
		Config:     cfg,
		Subscriber: queue,
		RecordUC:   usecase.NewRecordTraceUseCase(repo),
		db:         db,
		queue:      queue,
	}, nil
}

func (w *Worker) Close() {
	if w.queue != nil {
		w.queue.Close()
	}
	if w.db != nil {
		_ = w.db.Close()
	}
}

func breakerConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.BreakerEnabled = cfg.BreakerEnabled
	if cfg.BreakerOpenTimeout > 0 {
		out.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	}
	return out
}

func embeddingRetryConfig(cfg config.Config) resilience.Config {
	out := resilience.EmbeddingRetryConfig()
	if cfg.EmbedRetryAttempts > 0 {
		out.RetryMaxAttempts = cfg.EmbedRetryAttempts
	}
	if cfg.EmbedRetryInitialBackoff > 0 {
		out.RetryInitialBackoff = cfg.EmbedRetryInitialBackoff
	}
	if cfg.EmbedRetryMaxBackoff > 0 {
		out.RetryMaxBackoff = cfg.EmbedRetryMaxBackoff
	}
	return out
}

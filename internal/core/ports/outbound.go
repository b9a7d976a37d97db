package ports

import (
	"context"
	"time"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
)

// GraphStore runs read-only retrieval queries against the legislation graph.
type GraphStore interface {
	SearchLaws(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
	SearchFullText(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
}

// SemanticSearcher embeds a query and runs similarity search.
type SemanticSearcher interface {
	SearchSemantic(ctx context.Context, query string, threshold float64, limit int) ([]domain.SearchResult, error)
}

// Embedder builds vectors for query and document text.
type Embedder interface {
	Embed(ctx context.Context, texts []string, inputType domain.EmbeddingInputType) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore performs similarity search over the legal chunk collection.
// A threshold <= 0 means no minimum score.
type VectorStore interface {
	CollectionExists(ctx context.Context) (bool, error)
	Search(ctx context.Context, queryVector []float32, limit int, threshold float64) ([]domain.SearchResult, error)
}

// QueryAnalyzer decides whether a question is legal and extracts search keywords.
type QueryAnalyzer interface {
	Analyze(ctx context.Context, question string) (domain.QueryAnalysis, error)
}

// AnswerSynthesizer creates the final user-facing answer from ranked sources.
type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, question string, sources []domain.SearchResult) (string, error)
}

// TracePublisher emits finished ask traces for auditing.
type TracePublisher interface {
	PublishTrace(ctx context.Context, event domain.TraceEvent) error
}

// TraceSubscriber consumes trace events until ctx is done.
type TraceSubscriber interface {
	SubscribeTraces(ctx context.Context, handler func(context.Context, domain.TraceEvent) error) error
}

// TraceRepository persists trace events.
type TraceRepository interface {
	Save(ctx context.Context, event domain.TraceEvent) error
	GetByID(ctx context.Context, id string) (*domain.TraceEvent, error)
}

// RetrievalObserver receives retrieval and ask outcomes, typically for metrics.
type RetrievalObserver interface {
	ObserveSourceFetch(source string, results int, failed bool, duration time.Duration)
	ObserveHybridSearch(results int, duration time.Duration)
	ObserveAsk(status domain.AskStatus, duration time.Duration)
}

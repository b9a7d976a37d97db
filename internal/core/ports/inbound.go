package ports

import (
	"context"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
)

// HybridSearcher is the retrieval core. It never fails: source errors
// degrade to fewer results.
type HybridSearcher interface {
	HybridSearch(ctx context.Context, params domain.HybridSearchParams) []domain.SearchResult
}

// SearchService is the inbound contract for the search endpoint.
type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error)
}

// QuestionAnswerer is the inbound contract for the ask pipeline.
type QuestionAnswerer interface {
	Ask(ctx context.Context, req domain.AskRequest) (*domain.AskResult, error)
}

// TraceRecorder is the inbound contract for the audit worker.
type TraceRecorder interface {
	Record(ctx context.Context, event domain.TraceEvent) error
}

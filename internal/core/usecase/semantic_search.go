package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/core/ports"
)

const defaultMaxEmbedInputChars = 8000

// SemanticRetriever embeds the query and searches the vector collection.
// An overly strict threshold degrades to an unthresholded search.
type SemanticRetriever struct {
	embedder      ports.Embedder
	vectors       ports.VectorStore
	maxInputChars int
}

func NewSemanticRetriever(embedder ports.Embedder, vectors ports.VectorStore, maxInputChars int) *SemanticRetriever {
	if maxInputChars <= 0 {
		maxInputChars = defaultMaxEmbedInputChars
	}
	return &SemanticRetriever{
		embedder:      embedder,
		vectors:       vectors,
		maxInputChars: maxInputChars,
	}
}

func (r *SemanticRetriever) SearchSemantic(ctx context.Context, query string, threshold float64, limit int) ([]domain.SearchResult, error) {
	exists, err := r.vectors.CollectionExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check vector collection: %w", err)
	}
	if !exists {
		slog.Warn("vector_collection_missing")
		return []domain.SearchResult{}, nil
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, truncateRunes(query, r.maxInputChars))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.vectors.Search(ctx, queryVector, limit, threshold)
	if err != nil {
		return nil, fmt.Errorf("search vector db: %w", err)
	}
	if len(results) == 0 && threshold > 0 {
		slog.Info("vector_search_threshold_fallback", "threshold", threshold)
		results, err = r.vectors.Search(ctx, queryVector, limit, 0)
		if err != nil {
			return nil, fmt.Errorf("search vector db without threshold: %w", err)
		}
	}
	return results, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

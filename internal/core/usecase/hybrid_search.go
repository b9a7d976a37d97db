package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/core/ports"
)

const (
	sourceGraphKeyword  = "graph_keyword"
	sourceGraphFulltext = "graph_fulltext"
	sourceVector        = "vector"

	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

type RetrievalLimits struct {
	PerSourceLimit   int
	FinalContextSize int
	SourceTimeout    time.Duration
	VectorThreshold  float64
}

func DefaultRetrievalLimits() RetrievalLimits {
	return RetrievalLimits{
		PerSourceLimit:   8,
		FinalContextSize: 10,
		SourceTimeout:    15 * time.Second,
	}
}

type HybridSearchUseCase struct {
	graph    ports.GraphStore
	semantic ports.SemanticSearcher
	limits   RetrievalLimits
	observer ports.RetrievalObserver
}

func NewHybridSearchUseCase(
	graph ports.GraphStore,
	semantic ports.SemanticSearcher,
	limits RetrievalLimits,
	observer ports.RetrievalObserver,
) *HybridSearchUseCase {
	def := DefaultRetrievalLimits()
	if limits.PerSourceLimit <= 0 {
		limits.PerSourceLimit = def.PerSourceLimit
	}
	if limits.FinalContextSize <= 0 {
		limits.FinalContextSize = def.FinalContextSize
	}
	if limits.VectorThreshold < 0 {
		limits.VectorThreshold = 0
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &HybridSearchUseCase{
		graph:    graph,
		semantic: semantic,
		limits:   limits,
		observer: observer,
	}
}

type searchPlan struct {
	params         domain.HybridSearchParams
	threshold      float64
	perSourceLimit int
	finalSize      int
}

type sourceFetch struct {
	name  string
	fetch func(ctx context.Context) ([]domain.SearchResult, error)
}

// HybridSearch returns at most FinalContextSize results ordered by
// descending score. It never fails; a failing source contributes nothing.
func (uc *HybridSearchUseCase) HybridSearch(ctx context.Context, params domain.HybridSearchParams) []domain.SearchResult {
	return uc.run(ctx, searchPlan{
		params:         params,
		threshold:      uc.limits.VectorThreshold,
		perSourceLimit: uc.limits.PerSourceLimit,
		finalSize:      uc.limits.FinalContextSize,
	})
}

func (uc *HybridSearchUseCase) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is required"))
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("threshold must be within [0,1]"))
	}

	searchType := req.Type
	if searchType == "" {
		searchType = domain.SearchTypeHybrid
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	threshold := req.Threshold
	if threshold == 0 {
		threshold = uc.limits.VectorThreshold
	}

	params := domain.HybridSearchParams{Query: query, UseFullText: true}
	switch searchType {
	case domain.SearchTypeGraph:
		params.UseGraph = true
	case domain.SearchTypeVector:
		params.UseVector = true
	case domain.SearchTypeHybrid:
		params.UseGraph = true
		params.UseVector = true
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("unsupported search type %q", searchType))
	}

	start := time.Now()
	results := uc.run(ctx, searchPlan{
		params:         params,
		threshold:      threshold,
		perSourceLimit: max(uc.limits.PerSourceLimit, limit),
		finalSize:      limit,
	})

	return &domain.SearchResponse{
		Results:         results,
		Query:           query,
		SearchType:      searchType,
		TotalResults:    len(results),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (uc *HybridSearchUseCase) run(ctx context.Context, plan searchPlan) []domain.SearchResult {
	start := time.Now()
	if strings.TrimSpace(plan.params.Query) == "" {
		slog.Warn("hybrid_search_empty_query")
		uc.observer.ObserveHybridSearch(0, time.Since(start))
		return []domain.SearchResult{}
	}
	fetches := uc.planFetches(plan)
	if len(fetches) == 0 {
		slog.Warn("hybrid_search_no_sources", "query", plan.params.Query)
		uc.observer.ObserveHybridSearch(0, time.Since(start))
		return []domain.SearchResult{}
	}

	batches := make([][]domain.SearchResult, len(fetches))
	failed := make([]bool, len(fetches))

	// Branches swallow their own errors, so the group never cancels siblings.
	var group errgroup.Group
	for i, source := range fetches {
		group.Go(func() error {
			batches[i], failed[i] = uc.fetchSource(ctx, source, plan.perSourceLimit)
			return nil
		})
	}
	_ = group.Wait()

	failures := 0
	for _, f := range failed {
		if f {
			failures++
		}
	}
	if failures == len(fetches) {
		slog.Warn("hybrid_search_all_sources_failed", "query", plan.params.Query, "sources", len(fetches))
	}

	results := trimCandidates(mergeCandidates(batches...), plan.finalSize)
	uc.observer.ObserveHybridSearch(len(results), time.Since(start))
	return results
}

// planFetches lists enabled sources in merge order: keyword, fulltext, vector.
func (uc *HybridSearchUseCase) planFetches(plan searchPlan) []sourceFetch {
	query := strings.TrimSpace(plan.params.Query)
	if query == "" {
		return nil
	}

	fetches := make([]sourceFetch, 0, 3)
	if plan.params.UseGraph && uc.graph != nil {
		fetches = append(fetches, sourceFetch{
			name: sourceGraphKeyword,
			fetch: func(ctx context.Context) ([]domain.SearchResult, error) {
				return uc.graph.SearchLaws(ctx, query, plan.perSourceLimit)
			},
		})
		if plan.params.UseFullText {
			fetches = append(fetches, sourceFetch{
				name: sourceGraphFulltext,
				fetch: func(ctx context.Context) ([]domain.SearchResult, error) {
					return uc.graph.SearchFullText(ctx, query, plan.perSourceLimit)
				},
			})
		}
	}
	if plan.params.UseVector && uc.semantic != nil {
		fetches = append(fetches, sourceFetch{
			name: sourceVector,
			fetch: func(ctx context.Context) ([]domain.SearchResult, error) {
				return uc.semantic.SearchSemantic(ctx, query, plan.threshold, plan.perSourceLimit)
			},
		})
	}
	return fetches
}

func (uc *HybridSearchUseCase) fetchSource(ctx context.Context, source sourceFetch, limit int) (results []domain.SearchResult, failed bool) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("hybrid_search_source_panic", "source", source.name, "panic", fmt.Sprint(rec))
			results, failed = nil, true
		}
		uc.observer.ObserveSourceFetch(source.name, len(results), failed, time.Since(start))
	}()

	sourceCtx := ctx
	if uc.limits.SourceTimeout > 0 {
		var cancel context.CancelFunc
		sourceCtx, cancel = context.WithTimeout(ctx, uc.limits.SourceTimeout)
		defer cancel()
	}

	raw, err := source.fetch(sourceCtx)
	if err != nil {
		slog.Warn("hybrid_search_source_failed",
			"source", source.name,
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
			"error", err,
		)
		return nil, true
	}

	out := make([]domain.SearchResult, 0, len(raw))
	for _, r := range raw {
		if err := r.Validate(); err != nil {
			slog.Debug("hybrid_search_result_dropped", "source", source.name, "id", r.ID, "reason", err.Error())
			continue
		}
		out = append(out, withDefaultScore(r))
	}
	if source.name == sourceGraphFulltext {
		out = mergeCandidates(out)
	}
	return trimCandidates(out, limit), false
}

type noopObserver struct{}

func (noopObserver) ObserveSourceFetch(string, int, bool, time.Duration) {}
func (noopObserver) ObserveHybridSearch(int, time.Duration) {}
func (noopObserver) ObserveAsk(domain.AskStatus, time.Duration) {}

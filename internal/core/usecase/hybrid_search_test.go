package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
)

type graphStoreFake struct {
	laws        []domain.SearchResult
	fulltext    []domain.SearchResult
	lawsErr     error
	fulltextErr error

	lawsCalls     int32
	fulltextCalls int32
	lastLimit     int32
	barrier       *arrivalBarrier
}

func (f *graphStoreFake) SearchLaws(ctx context.Context, _ string, limit int) ([]domain.SearchResult, error) {
	atomic.AddInt32(&f.lawsCalls, 1)
	atomic.StoreInt32(&f.lastLimit, int32(limit))
	if err := f.barrier.wait(ctx); err != nil {
		return nil, err
	}
	if f.lawsErr != nil {
		return nil, f.lawsErr
	}
	return cloneResults(f.laws), nil
}

func (f *graphStoreFake) SearchFullText(ctx context.Context, _ string, _ int) ([]domain.SearchResult, error) {
	atomic.AddInt32(&f.fulltextCalls, 1)
	if err := f.barrier.wait(ctx); err != nil {
		return nil, err
	}
	if f.fulltextErr != nil {
		return nil, f.fulltextErr
	}
	return cloneResults(f.fulltext), nil
}

type semanticFake struct {
	results   []domain.SearchResult
	err       error
	panicMsg  string
	threshold float64
	calls     int32
	barrier   *arrivalBarrier
}

func (f *semanticFake) SearchSemantic(ctx context.Context, _ string, threshold float64, _ int) ([]domain.SearchResult, error) {
	atomic.AddInt32(&f.calls, 1)
	f.threshold = threshold
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if err := f.barrier.wait(ctx); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return cloneResults(f.results), nil
}

// arrivalBarrier releases waiters once n callers have arrived. Sequential
// callers never all arrive, so they run into their context deadline.
type arrivalBarrier struct {
	n       int
	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func newArrivalBarrier(n int) *arrivalBarrier {
	return &arrivalBarrier{n: n, release: make(chan struct{})}
}

func (b *arrivalBarrier) wait(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.n {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cloneResults(in []domain.SearchResult) []domain.SearchResult {
	out := make([]domain.SearchResult, len(in))
	copy(out, in)
	return out
}

func newEngine(graph *graphStoreFake, semantic *semanticFake) *HybridSearchUseCase {
	return NewHybridSearchUseCase(graph, semantic, RetrievalLimits{
		PerSourceLimit:   8,
		FinalContextSize: 10,
		SourceTimeout:    time.Second,
	}, nil)
}

func keysOf(results []domain.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.DedupKey())
	}
	return out
}

func TestHybridSearchMergesGraphKeywordAndVector(t *testing.T) {
	graph := &graphStoreFake{
		laws: []domain.SearchResult{{ID: "L1", Content: "Act on Signatures", SourceKind: domain.SourceGraphKeyword}},
	}
	semantic := &semanticFake{
		results: []domain.SearchResult{{ID: "V1", Score: domain.Score(0.9), Content: "Electronic signature requirements...", SourceKind: domain.SourceVector}},
	}

	results := newEngine(graph, semantic).HybridSearch(context.Background(), domain.NewHybridSearchParams("electronic signature"))

	require.Len(t, results, 2)
	assert.Equal(t, "V1", results[0].ID)
	assert.InDelta(t, 0.9, results[0].ScoreValue(), 1e-9)
	assert.Equal(t, "L1", results[1].ID)
	assert.Equal(t, 0.5, results[1].ScoreValue())
}

func TestHybridSearchKeepsHigherScoreOnDuplicateFullPath(t *testing.T) {
	graph := &graphStoreFake{
		fulltext: []domain.SearchResult{{
			ID: "p-1", FullPath: "328/1991_para:1", Content: "graph paragraph", SourceKind: domain.SourceGraphFulltextParagraph,
		}},
	}
	semantic := &semanticFake{
		results: []domain.SearchResult{{
			ID: "v-1", FullPath: "328/1991_para:1", Score: domain.Score(0.6), Content: "vector chunk", SourceKind: domain.SourceVector,
		}},
	}

	results := newEngine(graph, semantic).HybridSearch(context.Background(), domain.NewHybridSearchParams("bankrot"))

	require.Len(t, results, 1)
	assert.Equal(t, "p-1", results[0].ID)
	assert.Equal(t, domain.SourceGraphFulltextParagraph, results[0].SourceKind)
	assert.Equal(t, 0.8, results[0].ScoreValue())
}

func TestHybridSearchTieKeepsEarlierSource(t *testing.T) {
	graph := &graphStoreFake{
		fulltext: []domain.SearchResult{{ID: "p-1", FullPath: "k", Content: "graph", SourceKind: domain.SourceGraphFulltextSubsection}},
	}
	semantic := &semanticFake{
		results: []domain.SearchResult{{ID: "v-1", FullPath: "k", Score: domain.Score(0.8), Content: "vector", SourceKind: domain.SourceVector}},
	}

	results := newEngine(graph, semantic).HybridSearch(context.Background(), domain.NewHybridSearchParams("q"))

	require.Len(t, results, 1)
	assert.Equal(t, "p-1", results[0].ID)
}

func TestHybridSearchAllSourcesDisabledReturnsEmpty(t *testing.T) {
	graph := &graphStoreFake{laws: []domain.SearchResult{{ID: "L1", Content: "x", SourceKind: domain.SourceGraphKeyword}}}
	semantic := &semanticFake{}

	results := newEngine(graph, semantic).HybridSearch(context.Background(), domain.HybridSearchParams{
		Query:       "q",
		UseGraph:    false,
		UseVector:   false,
		UseFullText: true,
	})

	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, atomic.LoadInt32(&graph.lawsCalls))
	assert.Zero(t, atomic.LoadInt32(&semantic.calls))
}

func TestHybridSearchSkipsFullTextWhenDisabled(t *testing.T) {
	graph := &graphStoreFake{
		laws:     []domain.SearchResult{{ID: "L1", Content: "law", SourceKind: domain.SourceGraphKeyword}},
		fulltext: []domain.SearchResult{{ID: "P1", Content: "para", SourceKind: domain.SourceGraphFulltextParagraph}},
	}
	params := domain.NewHybridSearchParams("q")
	params.UseVector = false
	params.UseFullText = false

	results := newEngine(graph, &semanticFake{}).HybridSearch(context.Background(), params)

	assert.Equal(t, []string{"L1"}, keysOf(results))
	assert.Zero(t, atomic.LoadInt32(&graph.fulltextCalls))
}

func TestHybridSearchSurvivesSourceFailures(t *testing.T) {
	graph := &graphStoreFake{
		lawsErr:  errors.New("neo4j unavailable"),
		fulltext: []domain.SearchResult{{ID: "P1", Content: "para", SourceKind: domain.SourceGraphFulltextParagraph}},
	}
	semantic := &semanticFake{err: fmt.Errorf("embed query: %w", domain.ErrEmbedding)}

	results := newEngine(graph, semantic).HybridSearch(context.Background(), domain.NewHybridSearchParams("q"))

	assert.Equal(t, []string{"P1"}, keysOf(results))
}

func TestHybridSearchAllSourcesFailingReturnsEmpty(t *testing.T) {
	graph := &graphStoreFake{lawsErr: errors.New("down"), fulltextErr: errors.New("down")}
	semantic := &semanticFake{panicMsg: "boom"}

	results := newEngine(graph, semantic).HybridSearch(context.Background(), domain.NewHybridSearchParams("q"))

	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestHybridSearchAppliesDefaultScores(t *testing.T) {
	graph := &graphStoreFake{
		laws:     []domain.SearchResult{{ID: "L1", Content: "law", SourceKind: domain.SourceGraphKeyword}},
		fulltext: []domain.SearchResult{{ID: "S1", Content: "sub", SourceKind: domain.SourceGraphFulltextSubsection}},
	}
	semantic := &semanticFake{results: []domain.SearchResult{{ID: "V1", Content: "vec", SourceKind: domain.SourceVector}}}

	results := newEngine(graph, semantic).HybridSearch(context.Background(), domain.NewHybridSearchParams("q"))

	require.Len(t, results, 3)
	scores := map[string]float64{}
	for _, r := range results {
		require.NotNil(t, r.Score)
		scores[r.ID] = *r.Score
	}
	assert.Equal(t, 0.5, scores["L1"])
	assert.Equal(t, 0.8, scores["S1"])
	assert.Equal(t, 0.0, scores["V1"])
}

func TestHybridSearchBoundsAndOrdersOutput(t *testing.T) {
	laws := make([]domain.SearchResult, 0, 8)
	fulltext := make([]domain.SearchResult, 0, 16)
	vectors := make([]domain.SearchResult, 0, 8)
	for i := 0; i < 8; i++ {
		laws = append(laws, domain.SearchResult{ID: fmt.Sprintf("L%d", i), Score: domain.Score(float64(i)), Content: "law", SourceKind: domain.SourceGraphKeyword})
		vectors = append(vectors, domain.SearchResult{ID: fmt.Sprintf("V%d", i), FullPath: fmt.Sprintf("L%d", i%3), Score: domain.Score(0.1 * float64(i)), Content: "vec", SourceKind: domain.SourceVector})
	}
	for i := 0; i < 16; i++ {
		fulltext = append(fulltext, domain.SearchResult{ID: fmt.Sprintf("P%d", i), Score: domain.Score(float64(16 - i)), Content: "para", SourceKind: domain.SourceGraphFulltextParagraph})
	}
	graph := &graphStoreFake{laws: laws, fulltext: fulltext}
	semantic := &semanticFake{results: vectors}

	results := newEngine(graph, semantic).HybridSearch(context.Background(), domain.NewHybridSearchParams("q"))

	require.Len(t, results, 10)
	seen := map[string]bool{}
	for i, r := range results {
		assert.False(t, seen[r.DedupKey()], "duplicate key %s", r.DedupKey())
		seen[r.DedupKey()] = true
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].ScoreValue(), r.ScoreValue())
		}
	}
	assert.Equal(t, "P0", results[0].ID)
	assert.Equal(t, int32(8), atomic.LoadInt32(&graph.lastLimit))
}

func TestHybridSearchIsIdempotent(t *testing.T) {
	graph := &graphStoreFake{
		laws:     []domain.SearchResult{{ID: "L1", Content: "law", SourceKind: domain.SourceGraphKeyword}},
		fulltext: []domain.SearchResult{{ID: "P1", Score: domain.Score(2.5), Content: "para", SourceKind: domain.SourceGraphFulltextParagraph}},
	}
	semantic := &semanticFake{results: []domain.SearchResult{{ID: "V1", Score: domain.Score(0.7), Content: "vec", SourceKind: domain.SourceVector}}}
	engine := newEngine(graph, semantic)

	first := engine.HybridSearch(context.Background(), domain.NewHybridSearchParams("q"))
	second := engine.HybridSearch(context.Background(), domain.NewHybridSearchParams("q"))

	assert.Equal(t, keysOf(first), keysOf(second))
}

func TestHybridSearchRunsSourcesConcurrently(t *testing.T) {
	barrier := newArrivalBarrier(3)
	graph := &graphStoreFake{
		laws:     []domain.SearchResult{{ID: "L1", Content: "law", SourceKind: domain.SourceGraphKeyword}},
		fulltext: []domain.SearchResult{{ID: "P1", Content: "para", SourceKind: domain.SourceGraphFulltextParagraph}},
		barrier:  barrier,
	}
	semantic := &semanticFake{
		results: []domain.SearchResult{{ID: "V1", Score: domain.Score(0.3), Content: "vec", SourceKind: domain.SourceVector}},
		barrier: barrier,
	}
	engine := NewHybridSearchUseCase(graph, semantic, RetrievalLimits{SourceTimeout: 500 * time.Millisecond}, nil)

	results := engine.HybridSearch(context.Background(), domain.NewHybridSearchParams("q"))

	assert.Equal(t, []string{"P1", "L1", "V1"}, keysOf(results))
}

func TestHybridSearchDropsInvalidResults(t *testing.T) {
	graph := &graphStoreFake{
		laws: []domain.SearchResult{
			{ID: "", Content: "no id", SourceKind: domain.SourceGraphKeyword},
			{ID: "L2", Content: "  ", SourceKind: domain.SourceGraphKeyword},
			{ID: "L3", Content: "ok", SourceKind: domain.SourceGraphKeyword},
		},
	}

	results := newEngine(graph, &semanticFake{}).HybridSearch(context.Background(), domain.HybridSearchParams{Query: "q", UseGraph: true})

	assert.Equal(t, []string{"L3"}, keysOf(results))
}

func TestSearchVectorTypeUsesRequestThreshold(t *testing.T) {
	graph := &graphStoreFake{laws: []domain.SearchResult{{ID: "L1", Content: "law", SourceKind: domain.SourceGraphKeyword}}}
	semantic := &semanticFake{results: []domain.SearchResult{{ID: "V1", Score: domain.Score(0.95), Content: "vec", SourceKind: domain.SourceVector}}}

	resp, err := newEngine(graph, semantic).Search(context.Background(), domain.SearchRequest{
		Query:     "signature",
		Type:      domain.SearchTypeVector,
		Limit:     3,
		Threshold: 0.9,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalResults)
	assert.Equal(t, domain.SearchTypeVector, resp.SearchType)
	assert.Equal(t, 0.9, semantic.threshold)
	assert.Zero(t, atomic.LoadInt32(&graph.lawsCalls))
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	_, err := newEngine(&graphStoreFake{}, &semanticFake{}).Search(context.Background(), domain.SearchRequest{Query: "  "})
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}

func TestSearchCapsLimit(t *testing.T) {
	laws := make([]domain.SearchResult, 0, 60)
	for i := 0; i < 60; i++ {
		laws = append(laws, domain.SearchResult{ID: fmt.Sprintf("L%d", i), Content: "law", SourceKind: domain.SourceGraphKeyword})
	}
	graph := &graphStoreFake{laws: laws}

	resp, err := newEngine(graph, &semanticFake{}).Search(context.Background(), domain.SearchRequest{
		Query: "q",
		Type:  domain.SearchTypeGraph,
		Limit: 500,
	})

	require.NoError(t, err)
	assert.Equal(t, 50, resp.TotalResults)
	assert.Equal(t, int32(50), atomic.LoadInt32(&graph.lastLimit))
}

func TestHybridSearchBlankQueryCallsNoSource(t *testing.T) {
	graph := &graphStoreFake{laws: []domain.SearchResult{{ID: "L1", Content: "x", SourceKind: domain.SourceGraphKeyword}}}
	semantic := &semanticFake{results: []domain.SearchResult{{ID: "V1", Content: "y", SourceKind: domain.SourceVector}}}

	results := newEngine(graph, semantic).HybridSearch(context.Background(), domain.HybridSearchParams{
		Query:       " \t\n",
		UseGraph:    true,
		UseVector:   true,
		UseFullText: true,
	})

	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, atomic.LoadInt32(&graph.lawsCalls))
	assert.Zero(t, atomic.LoadInt32(&graph.fulltextCalls))
	assert.Zero(t, atomic.LoadInt32(&semantic.calls))
}

func TestHybridSearchVectorFallbackReachesMergedOutput(t *testing.T) {
	vectors := &vectorStoreFake{hits: []domain.SearchResult{
		{ID: "c-1", FullPath: "227/2000_para:2", Score: domain.Score(0.42), Content: "Elektronický podpis...", SourceKind: domain.SourceVector},
		{ID: "c-2", FullPath: "227/2000_para:5", Score: domain.Score(0.31), Content: "Kvalifikovaný certifikát...", SourceKind: domain.SourceVector},
	}}
	retriever := NewSemanticRetriever(&embedderFake{}, vectors, 0)
	engine := NewHybridSearchUseCase(&graphStoreFake{}, retriever, RetrievalLimits{
		PerSourceLimit:   8,
		FinalContextSize: 10,
		VectorThreshold:  0.99,
		SourceTimeout:    time.Second,
	}, nil)

	results := engine.HybridSearch(context.Background(), domain.HybridSearchParams{
		Query:       "electronic signature",
		UseGraph:    true,
		UseVector:   true,
		UseFullText: true,
	})

	require.Len(t, results, 2)
	assert.Equal(t, []string{"227/2000_para:2", "227/2000_para:5"}, keysOf(results))
	assert.Equal(t, []float64{0.99, 0}, vectors.thresholds)
}

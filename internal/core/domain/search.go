package domain

import (
	"errors"
	"math"
	"strings"
)

// SourceKind tags where a result came from. It decides the default score
// and the merge order of the hybrid engine.
type SourceKind string

const (
	SourceGraphKeyword            SourceKind = "graph-keyword"
	SourceGraphFulltextParagraph  SourceKind = "graph-fulltext-paragraph"
	SourceGraphFulltextSubsection SourceKind = "graph-fulltext-subsection"
	SourceVector                  SourceKind = "vector"
)

const (
	DefaultKeywordScore  = 0.5
	DefaultFulltextScore = 0.8
)

// DefaultScore is the score assigned to a result of this kind that arrived
// without one. Vector hits always carry a similarity, so absent means zero.
func (k SourceKind) DefaultScore() float64 {
	switch k {
	case SourceGraphKeyword:
		return DefaultKeywordScore
	case SourceGraphFulltextParagraph, SourceGraphFulltextSubsection:
		return DefaultFulltextScore
	default:
		return 0
	}
}

func (k SourceKind) IsGraph() bool {
	return k == SourceGraphKeyword || k == SourceGraphFulltextParagraph || k == SourceGraphFulltextSubsection
}

type SearchResult struct {
	ID         string         `json:"id"`
	Score      *float64       `json:"score,omitempty"`
	SourceKind SourceKind     `json:"sourceKind"`
	Content    string         `json:"content"`
	Title      string         `json:"title,omitempty"`
	LawID      string         `json:"lawId,omitempty"`
	FullPath   string         `json:"fullPath,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

var (
	errEmptyResultID      = errors.New("search result id is empty")
	errEmptyResultContent = errors.New("search result content is empty")
	errNonFiniteScore     = errors.New("search result score is not finite")
)

// Validate reports whether the result may enter the engine.
func (r SearchResult) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errEmptyResultID
	}
	if strings.TrimSpace(r.Content) == "" {
		return errEmptyResultContent
	}
	if r.Score != nil && (math.IsNaN(*r.Score) || math.IsInf(*r.Score, 0)) {
		return errNonFiniteScore
	}
	return nil
}

// DedupKey is the full structural path when known, else the store id.
func (r SearchResult) DedupKey() string {
	if path := strings.TrimSpace(r.FullPath); path != "" {
		return path
	}
	return strings.TrimSpace(r.ID)
}

// ScoreValue treats a missing score as zero.
func (r SearchResult) ScoreValue() float64 {
	if r.Score == nil {
		return 0
	}
	return *r.Score
}

func Score(v float64) *float64 {
	return &v
}

type HybridSearchParams struct {
	Query       string
	UseGraph    bool
	UseVector   bool
	UseFullText bool
}

// NewHybridSearchParams enables every source, which is the default request shape.
func NewHybridSearchParams(query string) HybridSearchParams {
	return HybridSearchParams{
		Query:       query,
		UseGraph:    true,
		UseVector:   true,
		UseFullText: true,
	}
}

type SearchType string

const (
	SearchTypeGraph  SearchType = "graph"
	SearchTypeVector SearchType = "vector"
	SearchTypeHybrid SearchType = "hybrid"
)

func ParseSearchType(raw string) (SearchType, error) {
	switch SearchType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SearchTypeHybrid:
		return SearchTypeHybrid, nil
	case SearchTypeGraph:
		return SearchTypeGraph, nil
	case SearchTypeVector:
		return SearchTypeVector, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse search type", errors.New("searchType must be graph, vector or hybrid"))
	}
}

type SearchRequest struct {
	Query     string
	Type      SearchType
	Limit     int
	Threshold float64
}

type SearchResponse struct {
	Results         []SearchResult `json:"results"`
	Query           string         `json:"query"`
	SearchType      SearchType     `json:"searchType"`
	TotalResults    int            `json:"totalResults"`
	ExecutionTimeMs int64          `json:"executionTimeMs"`
}

// EmbeddingInputType hints the provider whether text is a query or a stored document.
type EmbeddingInputType string

const (
	InputTypeQuery    EmbeddingInputType = "query"
	InputTypeDocument EmbeddingInputType = "document"
)

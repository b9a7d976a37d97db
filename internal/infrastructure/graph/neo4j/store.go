package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/resilience"
)

const defaultLimit = 8

type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// queryRunner executes one Cypher statement inside its own session.
type queryRunner interface {
	Read(ctx context.Context, cypher string, params map[string]any) ([]*neo4jdriver.Record, error)
	Write(ctx context.Context, cypher string, params map[string]any) error
}

// Store is the read-only structured store over the legislation graph.
type Store struct {
	runner   queryRunner
	driver   neo4jdriver.DriverWithContext
	executor *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) (*Store, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, domain.WrapError(domain.ErrNotConfigured, "neo4j connect", fmt.Errorf("uri is required"))
	}
	driver, err := neo4jdriver.NewDriverWithContext(uri, neo4jdriver.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Store{
		runner:   &sessionRunner{driver: driver, database: cfg.Database},
		driver:   driver,
		executor: executor,
	}, nil
}

func newStoreWithRunner(runner queryRunner, executor *resilience.Executor) *Store {
	return &Store{runner: runner, executor: executor}
}

func (s *Store) Ping(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return domain.WrapError(domain.ErrTemporary, "neo4j ping", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// EnsureIndexes creates the fulltext indexes the search queries rely on.
// Every statement is attempted; failures are joined.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	var errs []error
	for _, q := range ensureIndexQueries {
		if err := s.runner.Write(ctx, q, nil); err != nil {
			slog.Warn("graph_index_create_failed", "query", q, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SearchLaws matches law titles through the fulltext index. When the index
// query fails it degrades to a substring match, then to an empty list.
func (s *Store) SearchLaws(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchResult{}, nil
	}
	limit = normalizeLimit(limit)

	records, err := s.read(ctx, "neo4j.search_laws", searchLawsQuery, map[string]any{
		"index": lawTitleIndex,
		"query": escapeLucene(query),
		"limit": limit,
	})
	if err == nil {
		return collectResults(records, func(r *neo4jdriver.Record) (domain.SearchResult, error) {
			return lawResult(r, "fulltext")
		}), nil
	}
	if ctx.Err() != nil {
		return []domain.SearchResult{}, nil
	}
	slog.Warn("graph_law_fulltext_failed", "error", err)

	records, err = s.read(ctx, "neo4j.search_laws_fallback", searchLawsFallbackQuery, map[string]any{
		"query": query,
		"score": fallbackKeywordScore,
		"limit": limit,
	})
	if err != nil {
		slog.Warn("graph_law_fallback_failed", "error", err)
		return []domain.SearchResult{}, nil
	}
	return collectResults(records, func(r *neo4jdriver.Record) (domain.SearchResult, error) {
		return lawResult(r, "contains")
	}), nil
}

// SearchFullText queries paragraph and subsection indexes independently, each
// capped at limit, and returns the combined set truncated to limit by index
// relevance. A failing side contributes nothing; both failing is an error.
func (s *Store) SearchFullText(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchResult{}, nil
	}
	limit = normalizeLimit(limit)
	escaped := escapeLucene(query)

	var paragraphs, subsections []domain.SearchResult
	var paragraphErr, subsectionErr error

	var group errgroup.Group
	group.Go(func() error {
		paragraphs, paragraphErr = s.searchSections(ctx, "neo4j.search_paragraphs", searchParagraphsQuery,
			paragraphTextIndex, escaped, limit, domain.SourceGraphFulltextParagraph)
		return nil
	})
	group.Go(func() error {
		subsections, subsectionErr = s.searchSections(ctx, "neo4j.search_subsections", searchSubsectionsQuery,
			subsectionTextIndex, escaped, limit, domain.SourceGraphFulltextSubsection)
		return nil
	})
	_ = group.Wait()

	if paragraphErr != nil {
		slog.Warn("graph_paragraph_fulltext_failed", "error", paragraphErr)
	}
	if subsectionErr != nil {
		slog.Warn("graph_subsection_fulltext_failed", "error", subsectionErr)
	}
	if paragraphErr != nil && subsectionErr != nil {
		return nil, fmt.Errorf("graph fulltext search: %w", errors.Join(paragraphErr, subsectionErr))
	}

	combined := make([]domain.SearchResult, 0, len(paragraphs)+len(subsections))
	combined = append(combined, paragraphs...)
	combined = append(combined, subsections...)
	sort.SliceStable(combined, func(i, j int) bool {
		return indexScore(combined[i]) > indexScore(combined[j])
	})
	if len(combined) > limit {
		combined = combined[:limit]
	}
	return combined, nil
}

func (s *Store) searchSections(
	ctx context.Context,
	operation string,
	cypher string,
	index string,
	query string,
	limit int,
	kind domain.SourceKind,
) ([]domain.SearchResult, error) {
	records, err := s.read(ctx, operation, cypher, map[string]any{
		"index": index,
		"query": query,
		"limit": limit,
	})
	if err != nil {
		return nil, err
	}
	return collectResults(records, func(r *neo4jdriver.Record) (domain.SearchResult, error) {
		return sectionResult(r, kind)
	}), nil
}

func (s *Store) read(ctx context.Context, operation, cypher string, params map[string]any) ([]*neo4jdriver.Record, error) {
	params = sanitizeParams(params)
	if s.executor == nil {
		return s.runner.Read(ctx, cypher, params)
	}

	var records []*neo4jdriver.Record
	err := s.executor.Execute(ctx, operation, func(callCtx context.Context) error {
		var runErr error
		records, runErr = s.runner.Read(callCtx, cypher, params)
		return runErr
	}, classifyGraphError)
	return records, err
}

func collectResults(records []*neo4jdriver.Record, convert func(*neo4jdriver.Record) (domain.SearchResult, error)) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(records))
	for _, record := range records {
		result, err := convert(record)
		if err != nil {
			slog.Debug("graph_record_dropped", "reason", err.Error())
			continue
		}
		out = append(out, result)
	}
	return out
}

func classifyGraphError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if neo4jdriver.IsRetryable(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var neoErr *neo4jdriver.Neo4jError
	if errors.As(err, &neoErr) && neoErr.Classification() == "ClientError" {
		// Missing index or bad syntax: let the caller fall back without tripping the breaker.
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

// sanitizeParams passes limits as exact integers; the server rejects float limits.
func sanitizeParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return params
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		if isLimitKey(key) {
			if n, ok := toInt64(value); ok {
				out[key] = n
				continue
			}
		}
		out[key] = value
	}
	return out
}

func isLimitKey(key string) bool {
	return key == "limit" || key == "skip" || strings.HasSuffix(key, "_limit")
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case float32:
		return floorFinite(float64(v))
	case float64:
		return floorFinite(v)
	default:
		return 0, false
	}
}

func floorFinite(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return int64(math.Floor(v)), true
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

var luceneReplacer = strings.NewReplacer(
	`\`, `\\`,
	`+`, `\+`,
	`-`, `\-`,
	`&`, `\&`,
	`|`, `\|`,
	`!`, `\!`,
	`(`, `\(`,
	`)`, `\)`,
	`{`, `\{`,
	`}`, `\}`,
	`[`, `\[`,
	`]`, `\]`,
	`^`, `\^`,
	`"`, `\"`,
	`~`, `\~`,
	`*`, `\*`,
	`?`, `\?`,
	`:`, `\:`,
	`/`, `\/`,
)

// escapeLucene makes user text safe for the fulltext query parser. Section
// signs and diacritics pass through untouched.
func escapeLucene(query string) string {
	return luceneReplacer.Replace(query)
}

type sessionRunner struct {
	driver   neo4jdriver.DriverWithContext
	database string
}

func (r *sessionRunner) Read(ctx context.Context, cypher string, params map[string]any) ([]*neo4jdriver.Record, error) {
	session := r.driver.NewSession(ctx, neo4jdriver.SessionConfig{
		AccessMode:   neo4jdriver.AccessModeRead,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4jdriver.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j read: %w", err)
	}
	records, _ := out.([]*neo4jdriver.Record)
	return records, nil
}

func (r *sessionRunner) Write(ctx context.Context, cypher string, params map[string]any) error {
	session := r.driver.NewSession(ctx, neo4jdriver.SessionConfig{
		AccessMode:   neo4jdriver.AccessModeWrite,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4jdriver.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("neo4j write: %w", err)
	}
	return nil
}

package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	collection string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CollectionExists reports whether the configured collection is present.
func (c *Client) CollectionExists(ctx context.Context) (bool, error) {
	var exists bool
	err := c.execute(ctx, "qdrant.collection_exists", func(callCtx context.Context) error {
		url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create collection request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant collection request: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			exists = false
			return nil
		case resp.StatusCode >= 300:
			return newHTTPStatusError("collection", resp)
		default:
			exists = true
			return nil
		}
	})
	return exists, err
}

type searchHit struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// Search runs a similarity query. threshold <= 0 means no score cutoff.
// Hits whose payload is not a legal chunk are dropped.
func (c *Client) Search(ctx context.Context, queryVector []float32, limit int, threshold float64) ([]domain.SearchResult, error) {
	if len(queryVector) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant search", fmt.Errorf("query vector is empty"))
	}
	if limit <= 0 {
		limit = 8
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if threshold > 0 {
		reqBody["score_threshold"] = threshold
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	var hits []searchHit
	err = c.execute(ctx, "qdrant.search", func(callCtx context.Context) error {
		url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create search request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant search request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return newHTTPStatusError("search", resp)
		}

		var searchResp struct {
			Result []searchHit `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		hits = searchResp.Result
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		pointID := pointIDString(hit.ID)
		payload, err := domain.ParseLegalChunkPayload(hit.Payload)
		if err != nil {
			slog.Warn("vector_payload_rejected", "point_id", pointID, "reason", err.Error())
			continue
		}
		out = append(out, toSearchResult(pointID, hit.Score, payload))
	}
	return out, nil
}

func toSearchResult(pointID string, score float64, payload domain.LegalChunkPayload) domain.SearchResult {
	id := strings.TrimSpace(payload.ChunkID)
	if id == "" {
		id = pointID
	}
	metadata := map[string]any{
		"point_id":     pointID,
		"vector_score": score,
	}
	if payload.SourceFile != "" {
		metadata["source_file"] = payload.SourceFile
	}
	if payload.NodeID != "" {
		metadata["node_id"] = payload.NodeID
	}
	if payload.ElementType != "" {
		metadata["element_type"] = payload.ElementType
	}

	return domain.SearchResult{
		ID:         id,
		Score:      domain.Score(score),
		SourceKind: domain.SourceVector,
		Content:    payload.Text,
		Title:      payload.Title,
		LawID:      payload.LawID,
		FullPath:   payload.FullPath,
		Metadata:   metadata,
	}
}

// pointIDString renders numeric and UUID point ids the same way Qdrant prints them.
func pointIDString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyQdrantError)
}

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "qdrant status error"
	}
	if e.Body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func newHTTPStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

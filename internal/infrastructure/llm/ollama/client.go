package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor

	queryPrefix    string
	documentPrefix string
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

// WithInputPrefixes sets the task prefixes some embedding models expect,
// e.g. "search_query: " and "search_document: " for nomic-embed-text.
func WithInputPrefixes(query, document string) Option {
	return func(c *Client) {
		c.queryPrefix = query
		c.documentPrefix = document
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func New(baseURL, genModel, embedModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type QueryAnalyzer struct {
	client *Client
}

func NewQueryAnalyzer(client *Client) *QueryAnalyzer {
	return &QueryAnalyzer{client: client}
}

func (a *QueryAnalyzer) Analyze(ctx context.Context, question string) (domain.QueryAnalysis, error) {
	raw, err := a.client.generateJSON(ctx, prompt.QueryAnalysis(question))
	if err != nil {
		return domain.QueryAnalysis{}, err
	}
	return prompt.ParseAnalysis(raw, question), nil
}

// Embedder calls /api/embed directly; retries belong to resilience.RetryingEmbedder.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string, inputType domain.EmbeddingInputType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prefix := e.client.documentPrefix
	if inputType == domain.InputTypeQuery {
		prefix = e.client.queryPrefix
	}
	input := make([]string, len(texts))
	for i, text := range texts {
		input[i] = prefix + text
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": input,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, wrapTemporaryIfNeeded("ollama embed", err)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text}, domain.InputTypeQuery)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Synthesizer struct {
	client *Client
}

func NewSynthesizer(client *Client) *Synthesizer {
	return &Synthesizer{client: client}
}

func (s *Synthesizer) Synthesize(ctx context.Context, question string, sources []domain.SearchResult) (string, error) {
	return s.client.generateText(ctx, prompt.Answer(question, sources))
}

func (c *Client) generateJSON(ctx context.Context, text string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": text,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generateText(ctx context.Context, text string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": text,
		"stream": false,
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	out, err := resilience.Call(ctx, c.executor, "ollama.generate", func(callCtx context.Context) (string, error) {
		var response struct {
			Response string `json:"response"`
		}
		if err := c.postJSON(callCtx, "/api/generate", reqBody, &response, "generate"); err != nil {
			return "", err
		}
		return strings.TrimSpace(response.Response), nil
	}, classifyOllamaError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama generate", err)
	}
	return out, nil
}

package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/resilience"
)

type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type Client struct {
	client     *openaisdk.Client
	configured bool
	chatModel  string
	embedModel string
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	sdkConfig := openaisdk.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		sdkConfig.BaseURL = strings.TrimRight(base, "/")
	}
	chatModel := strings.TrimSpace(cfg.ChatModel)
	if chatModel == "" {
		chatModel = openaisdk.GPT4oMini
	}
	embedModel := strings.TrimSpace(cfg.EmbedModel)
	if embedModel == "" {
		embedModel = string(openaisdk.SmallEmbedding3)
	}
	return &Client{
		client:     openaisdk.NewClientWithConfig(sdkConfig),
		configured: strings.TrimSpace(cfg.APIKey) != "",
		chatModel:  chatModel,
		embedModel: embedModel,
		executor:   executor,
	}
}

type QueryAnalyzer struct {
	client *Client
}

func NewQueryAnalyzer(client *Client) *QueryAnalyzer {
	return &QueryAnalyzer{client: client}
}

func (a *QueryAnalyzer) Analyze(ctx context.Context, question string) (domain.QueryAnalysis, error) {
	raw, err := a.client.chat(ctx, prompt.QueryAnalysis(question), true)
	if err != nil {
		return domain.QueryAnalysis{}, err
	}
	return prompt.ParseAnalysis(raw, question), nil
}

type Synthesizer struct {
	client *Client
}

func NewSynthesizer(client *Client) *Synthesizer {
	return &Synthesizer{client: client}
}

func (s *Synthesizer) Synthesize(ctx context.Context, question string, sources []domain.SearchResult) (string, error) {
	return s.client.chat(ctx, prompt.Answer(question, sources), false)
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string, _ domain.EmbeddingInputType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if !e.client.configured {
		return nil, domain.WrapError(domain.ErrNotConfigured, "openai embed", fmt.Errorf("OPENAI_API_KEY is not set"))
	}

	resp, err := e.client.client.CreateEmbeddings(ctx, openaisdk.EmbeddingRequest{
		Input: texts,
		Model: openaisdk.EmbeddingModel(e.client.embedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, item := range data {
		out[i] = item.Embedding
	}
	return out, nil
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

func (c *Client) chat(ctx context.Context, text string, jsonMode bool) (string, error) {
	if !c.configured {
		return "", domain.WrapError(domain.ErrNotConfigured, "openai chat", fmt.Errorf("OPENAI_API_KEY is not set"))
	}

	req := openaisdk.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openaisdk.ChatCompletionMessage{
			{
				Role:    openaisdk.ChatMessageRoleUser,
				Content: text,
			},
		},
		Temperature: 0.1,
	}
	if jsonMode {
		req.ResponseFormat = &openaisdk.ChatCompletionResponseFormat{
			Type: openaisdk.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	out, err := resilience.Call(ctx, c.executor, "openai.chat", func(callCtx context.Context) (string, error) {
		resp, err := c.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no response choices")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}, classifyOpenAIError)
	if err != nil {
		if classifyOpenAIError(err).Retryable || resilience.IsCircuitOpen(err) {
			return "", domain.WrapError(domain.ErrTemporary, "openai chat", err)
		}
		return "", fmt.Errorf("openai chat: %w", err)
	}
	return out, nil
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if resilience.IsContextError(err) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	status := 0
	var apiErr *openaisdk.APIError
	var reqErr *openaisdk.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case 0:
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
}

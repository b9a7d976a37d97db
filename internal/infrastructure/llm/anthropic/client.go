package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropicsdk "github.com/liushuangls/go-anthropic/v2"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/resilience"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 1024
)

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// Client covers analysis and synthesis; the API has no embeddings endpoint.
type Client struct {
	client     *anthropicsdk.Client
	configured bool
	model      string
	maxTokens  int
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	var opts []anthropicsdk.ClientOption
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, anthropicsdk.WithBaseURL(strings.TrimRight(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		client:     anthropicsdk.NewClient(cfg.APIKey, opts...),
		configured: strings.TrimSpace(cfg.APIKey) != "",
		model:      model,
		maxTokens:  maxTokens,
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
	raw, err := a.client.message(ctx, prompt.QueryAnalysis(question))
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
	return s.client.message(ctx, prompt.Answer(question, sources))
}

func (c *Client) message(ctx context.Context, text string) (string, error) {
	if !c.configured {
		return "", domain.WrapError(domain.ErrNotConfigured, "anthropic messages", fmt.Errorf("ANTHROPIC_API_KEY is not set"))
	}

	req := anthropicsdk.MessagesRequest{
		Model: anthropicsdk.Model(c.model),
		Messages: []anthropicsdk.Message{
			{
				Role: anthropicsdk.RoleUser,
				Content: []anthropicsdk.MessageContent{
					anthropicsdk.NewTextMessageContent(text),
				},
			},
		},
		MaxTokens: c.maxTokens,
	}

	out, err := resilience.Call(ctx, c.executor, "anthropic.messages", func(callCtx context.Context) (string, error) {
		resp, err := c.client.CreateMessages(callCtx, req)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, content := range resp.Content {
			if content.Text != nil {
				b.WriteString(*content.Text)
			}
		}
		if b.Len() == 0 {
			return "", fmt.Errorf("no response content")
		}
		return strings.TrimSpace(b.String()), nil
	}, classifyAnthropicError)
	if err != nil {
		if classifyAnthropicError(err).Retryable || resilience.IsCircuitOpen(err) {
			return "", domain.WrapError(domain.ErrTemporary, "anthropic messages", err)
		}
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	return out, nil
}

func classifyAnthropicError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if resilience.IsContextError(err) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var apiErr *anthropicsdk.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsRateLimitErr() || apiErr.IsOverloadedErr() || apiErr.IsApiErr() {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var reqErr *anthropicsdk.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

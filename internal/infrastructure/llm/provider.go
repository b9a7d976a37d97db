// Package llm selects the language-model and embedding providers.
package llm

import (
	"fmt"
	"strings"

	"github.com/kirillkom/legal-assistant/internal/config"
	"github.com/kirillkom/legal-assistant/internal/core/ports"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/llm/openai"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/resilience"
)

type Providers struct {
	Analyzer    ports.QueryAnalyzer
	Synthesizer ports.AnswerSynthesizer
	Embedder    ports.Embedder
}

// NewProviders wires analysis and synthesis from LLM_PROVIDER and embeddings
// from EMBED_PROVIDER. The embedder is returned unwrapped; callers add retries.
func NewProviders(cfg config.Config, executor *resilience.Executor) (Providers, error) {
	var out Providers

	var ollamaClient *ollama.Client
	ollamaFor := func() *ollama.Client {
		if ollamaClient == nil {
			ollamaClient = ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
				ollama.WithExecutor(executor),
				ollama.WithInputPrefixes(cfg.EmbedQueryPrefix, cfg.EmbedDocumentPrefix),
			)
		}
		return ollamaClient
	}
	var openaiClient *openai.Client
	openaiFor := func() *openai.Client {
		if openaiClient == nil {
			openaiClient = openai.New(openai.Config{
				APIKey:     cfg.OpenAIAPIKey,
				BaseURL:    cfg.OpenAIBaseURL,
				ChatModel:  cfg.OpenAIChatModel,
				EmbedModel: cfg.OpenAIEmbedModel,
			}, executor)
		}
		return openaiClient
	}

	switch provider := strings.ToLower(strings.TrimSpace(cfg.LLMProvider)); provider {
	case "", "ollama":
		out.Analyzer = ollama.NewQueryAnalyzer(ollamaFor())
		out.Synthesizer = ollama.NewSynthesizer(ollamaFor())
	case "openai":
		out.Analyzer = openai.NewQueryAnalyzer(openaiFor())
		out.Synthesizer = openai.NewSynthesizer(openaiFor())
	case "anthropic", "claude":
		client := anthropic.New(anthropic.Config{
			APIKey:    cfg.AnthropicAPIKey,
			BaseURL:   cfg.AnthropicBaseURL,
			Model:     cfg.AnthropicModel,
			MaxTokens: cfg.AnthropicMaxTokens,
		}, executor)
		out.Analyzer = anthropic.NewQueryAnalyzer(client)
		out.Synthesizer = anthropic.NewSynthesizer(client)
	default:
		return Providers{}, fmt.Errorf("unsupported llm provider: %s", provider)
	}

	switch provider := strings.ToLower(strings.TrimSpace(cfg.EmbedProvider)); provider {
	case "", "ollama":
		out.Embedder = ollama.NewEmbedder(ollamaFor())
	case "openai":
		out.Embedder = openai.NewEmbedder(openaiFor())
	default:
		return Providers{}, fmt.Errorf("unsupported embedding provider: %s", provider)
	}

	return out, nil
}

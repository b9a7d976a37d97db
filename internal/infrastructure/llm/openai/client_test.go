package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
)

func newTestServer(t *testing.T, handler func(path string, body map[string]any) (int, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		status, resp := handler(r.URL.Path, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
}

func TestAnalyzerUsesJSONResponseFormat(t *testing.T) {
	var format any
	server := newTestServer(t, func(path string, body map[string]any) (int, string) {
		if path != "/v1/chat/completions" {
			return http.StatusNotFound, `{}`
		}
		format = body["response_format"]
		return http.StatusOK, `{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"is_legal\":true,\"keywords\":[\"podpis\"],\"search_query\":\"elektronický podpis\",\"reason\":\"law\"}"}}]}`
	})
	defer server.Close()

	client := New(Config{APIKey: "test", BaseURL: server.URL + "/v1"}, nil)
	analysis, err := NewQueryAnalyzer(client).Analyze(context.Background(), "Co je elektronický podpis?")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !analysis.IsLegal || analysis.SearchQuery != "elektronický podpis" {
		t.Fatalf("unexpected analysis %+v", analysis)
	}
	formatMap, _ := format.(map[string]any)
	if formatMap["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %v", format)
	}
}

func TestSynthesizerReturnsTrimmedContent(t *testing.T) {
	var prompt string
	server := newTestServer(t, func(_ string, body map[string]any) (int, string) {
		messages, _ := body["messages"].([]any)
		if len(messages) == 1 {
			msg, _ := messages[0].(map[string]any)
			prompt, _ = msg["content"].(string)
		}
		return http.StatusOK, `{"choices":[{"index":0,"message":{"role":"assistant","content":"  answer [1] "}}]}`
	})
	defer server.Close()

	client := New(Config{APIKey: "test", BaseURL: server.URL + "/v1"}, nil)
	got, err := NewSynthesizer(client).Synthesize(context.Background(), "q?", []domain.SearchResult{{ID: "L1", LawID: "89/2012", Content: "text"}})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got != "answer [1]" {
		t.Fatalf("unexpected answer %q", got)
	}
	if !strings.Contains(prompt, "[1] law=89/2012") {
		t.Fatalf("unexpected prompt %q", prompt)
	}
}

func TestEmbedderOrdersByIndex(t *testing.T) {
	server := newTestServer(t, func(path string, _ map[string]any) (int, string) {
		if path != "/v1/embeddings" {
			return http.StatusNotFound, `{}`
		}
		return http.StatusOK, `{"object":"list","data":[{"object":"embedding","index":1,"embedding":[0.2]},{"object":"embedding","index":0,"embedding":[0.1]}]}`
	})
	defer server.Close()

	client := New(Config{APIKey: "test", BaseURL: server.URL + "/v1"}, nil)
	vectors, err := NewEmbedder(client).Embed(context.Background(), []string{"a", "b"}, domain.InputTypeDocument)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 0.1 || vectors[1][0] != 0.2 {
		t.Fatalf("unexpected vectors %v", vectors)
	}
}

func TestMissingAPIKeyIsNotConfigured(t *testing.T) {
	client := New(Config{}, nil)

	if _, err := NewSynthesizer(client).Synthesize(context.Background(), "q", nil); !domain.IsKind(err, domain.ErrNotConfigured) {
		t.Fatalf("expected not configured from chat, got %v", err)
	}
	if _, err := NewEmbedder(client).EmbedQuery(context.Background(), "q"); !domain.IsKind(err, domain.ErrNotConfigured) {
		t.Fatalf("expected not configured from embed, got %v", err)
	}
}

func TestRateLimitIsTemporary(t *testing.T) {
	server := newTestServer(t, func(string, map[string]any) (int, string) {
		return http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`
	})
	defer server.Close()

	client := New(Config{APIKey: "test", BaseURL: server.URL + "/v1"}, nil)
	_, err := NewSynthesizer(client).Synthesize(context.Background(), "q", nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

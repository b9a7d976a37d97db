// Package mcpadapter exposes legal search and question answering as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/core/ports"
)

const (
	toolSearchLegislation = "search_legislation"
	toolAskLegalQuestion  = "ask_legal_question"
)

type Handlers struct {
	search ports.SearchService
	ask    ports.QuestionAnswerer
}

func NewHandlers(search ports.SearchService, ask ports.QuestionAnswerer) *Handlers {
	return &Handlers{search: search, ask: ask}
}

// NewServer registers both tools on a fresh MCP server.
func NewServer(name, version string, h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool(toolSearchLegislation,
		mcp.WithDescription("Search Czech legislation in the law graph and the vector index."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text, e.g. a term or a section reference.")),
		mcp.WithString("search_type", mcp.Enum("graph", "vector", "hybrid"), mcp.Description("Retrieval mode. Defaults to hybrid.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results, 1-50. Defaults to 10.")),
	), h.SearchLegislation)

	s.AddTool(mcp.NewTool(toolAskLegalQuestion,
		mcp.WithDescription("Answer a legal question from retrieved legislation."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question in natural language.")),
	), h.AskLegalQuestion)

	return s
}

func (h *Handlers) SearchLegislation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	searchType, err := domain.ParseSearchType(request.GetString("search_type", string(domain.SearchTypeHybrid)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := h.search.Search(ctx, domain.SearchRequest{
		Query: query,
		Type:  searchType,
		Limit: request.GetInt("limit", 0),
	})
	if err != nil {
		slog.Warn("mcp_tool_failed", "tool", toolSearchLegislation, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal search response: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (h *Handlers) AskLegalQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := h.ask.Ask(ctx, domain.AskRequest{Question: question})
	if err != nil {
		slog.Warn("mcp_tool_failed", "tool", toolAskLegalQuestion, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	if result.Status == domain.StatusError {
		return mcp.NewToolResultError(result.Answer), nil
	}
	return mcp.NewToolResultText(strings.TrimSpace(result.Answer)), nil
}

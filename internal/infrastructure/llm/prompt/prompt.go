// Package prompt holds the prompt text and response parsing shared by the
// language-model providers.
package prompt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
)

const maxQuestionRunes = 2000

const analysisInstructions = `You triage questions for a Czech legislation search engine.
Decide whether the question concerns law, legislation, legal rights or obligations.
Return a strict JSON object with keys:
is_legal (boolean), keywords (array of strings, at most 8, in the language of the question),
search_query (string, a short query suited for fulltext and semantic search), reason (string).
No markdown, no extra keys.

Question:
`

func QueryAnalysis(question string) string {
	return analysisInstructions + truncate(question, maxQuestionRunes)
}

const answerInstructions = `You are a legal assistant. Answer the question using only the numbered sources below.
Cite sources by their number, e.g. [1], and name the law and paragraph where possible.
If the sources are insufficient, say so directly. Do not invent provisions.
Answer in the language of the question.
`

// Answer renders the sources in engine order as labeled blocks.
func Answer(question string, sources []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString(answerInstructions)
	b.WriteString("\nQuestion:\n")
	b.WriteString(truncate(question, maxQuestionRunes))
	b.WriteString("\n\nSources:\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] law=%s path=%s title=%s\n%s\n\n",
			i+1,
			orDash(src.LawID),
			orDash(src.FullPath),
			orDash(src.Title),
			strings.TrimSpace(src.Content),
		)
	}
	return b.String()
}

type analysisPayload struct {
	IsLegal     *bool    `json:"is_legal"`
	Keywords    []string `json:"keywords"`
	SearchQuery string   `json:"search_query"`
	Reason      string   `json:"reason"`
}

// ParseAnalysis reads the analyzer reply. An unreadable reply is treated as
// a legal question searched by its own words, so retrieval still runs.
func ParseAnalysis(raw, question string) domain.QueryAnalysis {
	var payload analysisPayload
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &payload); err != nil || payload.IsLegal == nil {
		slog.Warn("query_analysis_unparsable", "error", err, "raw_len", len(raw))
		return fallbackAnalysis(question)
	}

	keywords := make([]string, 0, len(payload.Keywords))
	for _, kw := range payload.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return domain.QueryAnalysis{
		IsLegal:     *payload.IsLegal,
		Keywords:    keywords,
		SearchQuery: strings.TrimSpace(payload.SearchQuery),
		Reason:      strings.TrimSpace(payload.Reason),
	}
}

func fallbackAnalysis(question string) domain.QueryAnalysis {
	return domain.QueryAnalysis{
		IsLegal:     true,
		Keywords:    tokenize(question),
		SearchQuery: strings.TrimSpace(question),
		Reason:      "analysis unavailable",
	}
}

func ExtractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '§' && r != '/'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= 3 || strings.ContainsAny(f, "§/") {
			out = append(out, f)
		}
	}
	return out
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

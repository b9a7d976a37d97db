package neo4j

import (
	"fmt"
	"math"
	"strings"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
)

// Graph results leave Score unset; the raw index score travels in metadata
// and the engine assigns the source default.
const metaIndexScore = "index_score"

func lawResult(record *neo4jdriver.Record, mode string) (domain.SearchResult, error) {
	lawID := recordString(record, "law_id")
	title := recordString(record, "title")
	if lawID == "" {
		return domain.SearchResult{}, fmt.Errorf("law record without law_id")
	}

	content := title
	if content == "" {
		content = lawID
	}
	metadata := map[string]any{
		"match_mode": mode,
	}
	putIfPresent(metadata, "node_id", recordString(record, "node_id"))
	putIfPresent(metadata, "source_file", recordString(record, "source_file"))
	putIfPresent(metadata, "effective_date", recordString(record, "effective_date"))
	putIfPresent(metadata, "publication_date", recordString(record, "publication_date"))
	putIfPresent(metadata, "enforcing_agency", recordString(record, "enforcing_agency"))
	if score, ok := recordFloat(record, "score"); ok {
		metadata[metaIndexScore] = score
	}

	return domain.SearchResult{
		ID:         lawID,
		SourceKind: domain.SourceGraphKeyword,
		Content:    content,
		Title:      title,
		LawID:      lawID,
		Metadata:   metadata,
	}, nil
}

func sectionResult(record *neo4jdriver.Record, kind domain.SourceKind) (domain.SearchResult, error) {
	id := recordString(record, "id")
	if id == "" {
		id = recordString(record, "node_id")
	}
	text := recordString(record, "text")
	if id == "" {
		return domain.SearchResult{}, fmt.Errorf("%s record without id", kind)
	}
	if strings.TrimSpace(text) == "" {
		return domain.SearchResult{}, fmt.Errorf("%s record %s without text", kind, id)
	}

	metadata := map[string]any{}
	putIfPresent(metadata, "node_id", recordString(record, "node_id"))
	putIfPresent(metadata, "identifier", recordString(record, "identifier"))
	if score, ok := recordFloat(record, "score"); ok {
		metadata[metaIndexScore] = score
	}

	return domain.SearchResult{
		ID:         id,
		SourceKind: kind,
		Content:    text,
		Title:      recordString(record, "title"),
		LawID:      recordString(record, "law_id"),
		FullPath:   recordString(record, "full_path"),
		Metadata:   metadata,
	}, nil
}

func indexScore(r domain.SearchResult) float64 {
	if v, ok := r.Metadata[metaIndexScore].(float64); ok {
		return v
	}
	return 0
}

func recordString(record *neo4jdriver.Record, key string) string {
	if record == nil {
		return ""
	}
	raw, ok := record.Get(key)
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func recordFloat(record *neo4jdriver.Record, key string) (float64, bool) {
	if record == nil {
		return 0, false
	}
	raw, ok := record.Get(key)
	if !ok || raw == nil {
		return 0, false
	}
	var out float64
	switch v := raw.(type) {
	case float64:
		out = v
	case float32:
		out = float64(v)
	case int64:
		out = float64(v)
	case int:
		out = float64(v)
	default:
		return 0, false
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, false
	}
	return out, true
}

func putIfPresent(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

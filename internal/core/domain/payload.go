package domain

import (
	"fmt"
	"strings"
)

// LegalChunkPayload is the typed form of a semantic store payload.
type LegalChunkPayload struct {
	Text        string
	LawID       string
	FullPath    string
	Title       string
	ChunkID     string
	SourceFile  string
	NodeID      string
	ElementType string
}

// ParseLegalChunkPayload accepts a raw payload map or returns the reason it
// cannot be used. text, law_id and full_path are required.
func ParseLegalChunkPayload(raw map[string]any) (LegalChunkPayload, error) {
	if raw == nil {
		return LegalChunkPayload{}, fmt.Errorf("payload is empty")
	}

	out := LegalChunkPayload{
		Title:       payloadString(raw, "title"),
		ChunkID:     payloadString(raw, "chunk_id"),
		SourceFile:  payloadString(raw, "source_file"),
		NodeID:      payloadString(raw, "node_id"),
		ElementType: payloadString(raw, "element_type"),
	}

	var missing []string
	if out.Text = payloadString(raw, "text"); out.Text == "" {
		missing = append(missing, "text")
	}
	if out.LawID = payloadString(raw, "law_id"); out.LawID == "" {
		missing = append(missing, "law_id")
	}
	if out.FullPath = payloadString(raw, "full_path"); out.FullPath == "" {
		missing = append(missing, "full_path")
	}
	if len(missing) > 0 {
		return LegalChunkPayload{}, fmt.Errorf("payload missing required fields: %s", strings.Join(missing, ","))
	}
	return out, nil
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(s)
}

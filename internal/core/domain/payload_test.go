package domain

import (
	"strings"
	"testing"
)

func TestParseLegalChunkPayloadAcceptsCompletePayload(t *testing.T) {
	payload, err := ParseLegalChunkPayload(map[string]any{
		"text":      "Elektronický podpis je...",
		"law_id":    "297/2016 Sb.",
		"full_path": "297/2016_para:5",
		"title":     "o službách vytvářejících důvěru",
		"chunk_id":  "c-17",
	})
	if err != nil {
		t.Fatalf("ParseLegalChunkPayload() error = %v", err)
	}
	if payload.ChunkID != "c-17" || payload.FullPath != "297/2016_para:5" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestParseLegalChunkPayloadRejectsMissingFields(t *testing.T) {
	_, err := ParseLegalChunkPayload(map[string]any{"text": "body", "law_id": 12})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "full_path") {
		t.Fatalf("expected missing full_path in error, got %v", err)
	}
}

func TestParseLegalChunkPayloadTrimsValues(t *testing.T) {
	payload, err := ParseLegalChunkPayload(map[string]any{
		"text":      "  Zaměstnanec je povinen...\n",
		"law_id":    " 262/2006 Sb.",
		"full_path": "262/2006_para:301 ",
	})
	if err != nil {
		t.Fatalf("ParseLegalChunkPayload() error = %v", err)
	}
	if payload.FullPath != "262/2006_para:301" || payload.LawID != "262/2006 Sb." || payload.Text != "Zaměstnanec je povinen..." {
		t.Fatalf("expected trimmed payload, got %+v", payload)
	}

	if _, err := ParseLegalChunkPayload(map[string]any{"text": "body", "law_id": "1/2000", "full_path": "   "}); err == nil {
		t.Fatalf("expected blank full_path to be rejected")
	}
}

func TestSearchResultDedupKeyIgnoresSurroundingWhitespace(t *testing.T) {
	graph := SearchResult{ID: "n-1", FullPath: "328/1991_para:1"}
	vector := SearchResult{ID: "c-9", FullPath: "328/1991_para:1 "}
	if graph.DedupKey() != vector.DedupKey() {
		t.Fatalf("expected equal keys, got %q and %q", graph.DedupKey(), vector.DedupKey())
	}
	if got := (SearchResult{ID: " n-2 ", FullPath: "  "}).DedupKey(); got != "n-2" {
		t.Fatalf("expected trimmed id fallback, got %q", got)
	}
}

func TestSearchResultDedupKeyPrefersFullPath(t *testing.T) {
	withPath := SearchResult{ID: "n-1", FullPath: "328/1991_para:1"}
	if got := withPath.DedupKey(); got != "328/1991_para:1" {
		t.Fatalf("expected full path key, got %q", got)
	}
	withoutPath := SearchResult{ID: "n-1"}
	if got := withoutPath.DedupKey(); got != "n-1" {
		t.Fatalf("expected id key, got %q", got)
	}
}

func TestSourceKindDefaultScore(t *testing.T) {
	cases := map[SourceKind]float64{
		SourceGraphKeyword:            0.5,
		SourceGraphFulltextParagraph:  0.8,
		SourceGraphFulltextSubsection: 0.8,
		SourceVector:                  0,
	}
	for kind, want := range cases {
		if got := kind.DefaultScore(); got != want {
			t.Fatalf("%s: expected %v, got %v", kind, want, got)
		}
	}
}

func TestParseSearchType(t *testing.T) {
	if got, err := ParseSearchType(""); err != nil || got != SearchTypeHybrid {
		t.Fatalf("expected hybrid default, got %q err=%v", got, err)
	}
	if _, err := ParseSearchType("fuzzy"); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

package domain

import "time"

// AskStatus is the state of a single question run. Everything except
// StatusProcessing is terminal.
type AskStatus string

const (
	StatusProcessing      AskStatus = "processing"
	StatusSuccess         AskStatus = "success"
	StatusError           AskStatus = "error"
	StatusIrrelevantQuery AskStatus = "irrelevant_query"
	StatusNoResults       AskStatus = "no_results"
)

func (s AskStatus) Terminal() bool {
	return s != StatusProcessing && s != ""
}

type QueryAnalysis struct {
	IsLegal     bool     `json:"is_legal"`
	Keywords    []string `json:"keywords"`
	SearchQuery string   `json:"search_query"`
	Reason      string   `json:"reason,omitempty"`
}

type TraceStep struct {
	Step        int    `json:"step"`
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	Input       string `json:"input"`
	Observation string `json:"observation"`
	Error       string `json:"error,omitempty"`
}

type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId,omitempty"`
	Debug     bool   `json:"debug,omitempty"`
}

type AskResult struct {
	TraceID   string         `json:"traceId"`
	SessionID string         `json:"sessionId,omitempty"`
	Question  string         `json:"-"`
	Answer    string         `json:"answer"`
	Status    AskStatus      `json:"status"`
	Sources   []SearchResult `json:"sources,omitempty"`
	Trace     []TraceStep    `json:"debugInfo,omitempty"`
}

// TraceEvent is the audit record emitted after every finished ask run.
type TraceEvent struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id,omitempty"`
	Question  string      `json:"question"`
	Status    AskStatus   `json:"status"`
	Answer    string      `json:"answer"`
	Steps     []TraceStep `json:"steps"`
	CreatedAt time.Time   `json:"created_at"`
}

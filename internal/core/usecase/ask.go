package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/core/ports"
)

const (
	actionAnalyzeQuery     = "analyze_query"
	actionHybridSearch     = "hybrid_search"
	actionSynthesizeAnswer = "synthesize_answer"

	messageIrrelevantQuery = "The question does not appear to concern legislation. Please ask a question about the law."
	messageNoResults       = "No relevant legislation was found for this question."
	messageFailure         = "An error occurred while processing the question. Please try again later."
)

type AskOptions struct {
	DebugAllowed bool
	Publisher    ports.TracePublisher
	Observer     ports.RetrievalObserver
}

type AskUseCase struct {
	analyzer    ports.QueryAnalyzer
	searcher    ports.HybridSearcher
	synthesizer ports.AnswerSynthesizer
	opts        AskOptions
}

func NewAskUseCase(
	analyzer ports.QueryAnalyzer,
	searcher ports.HybridSearcher,
	synthesizer ports.AnswerSynthesizer,
	opts AskOptions,
) *AskUseCase {
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	return &AskUseCase{
		analyzer:    analyzer,
		searcher:    searcher,
		synthesizer: synthesizer,
		opts:        opts,
	}
}

// Ask runs analysis, retrieval and synthesis. Pipeline failures end in a
// terminal status on the result; only invalid input is returned as an error.
func (uc *AskUseCase) Ask(ctx context.Context, req domain.AskRequest) (*domain.AskResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question is required"))
	}

	start := time.Now()
	run := &askRun{
		result: domain.AskResult{
			TraceID:   uuid.NewString(),
			SessionID: strings.TrimSpace(req.SessionID),
			Question:  question,
			Status:    domain.StatusProcessing,
		},
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("ask_pipeline_panic", "trace_id", run.result.TraceID, "panic", fmt.Sprint(rec))
				run.record("Unexpected failure", "pipeline", question, nil, fmt.Errorf("panic: %v", rec))
				run.finish(domain.StatusError, messageFailure)
			}
		}()
		uc.execute(ctx, run, question)
	}()

	uc.opts.Observer.ObserveAsk(run.result.Status, time.Since(start))
	uc.publish(ctx, run)

	out := run.result
	if !req.Debug || !uc.opts.DebugAllowed {
		out.Trace = nil
		out.Sources = nil
	}
	return &out, nil
}

func (uc *AskUseCase) execute(ctx context.Context, run *askRun, question string) {
	analysis, err := uc.analyzer.Analyze(ctx, question)
	run.record("Decide whether the question is legal and extract search terms", actionAnalyzeQuery, question, analysis, err)
	if err != nil {
		run.finish(domain.StatusError, messageFailure)
		return
	}
	if !analysis.IsLegal {
		run.finish(domain.StatusIrrelevantQuery, messageIrrelevantQuery)
		return
	}

	params := domain.NewHybridSearchParams(searchQueryFrom(analysis, question))
	results := uc.searcher.HybridSearch(ctx, params)
	run.record("Retrieve legislation from graph and vector stores", actionHybridSearch, params, summarizeResults(results), nil)
	if len(results) == 0 {
		run.finish(domain.StatusNoResults, messageNoResults)
		return
	}
	run.result.Sources = results

	answer, err := uc.synthesizer.Synthesize(ctx, question, results)
	answer = strings.TrimSpace(answer)
	if err == nil && answer == "" {
		err = fmt.Errorf("synthesizer returned no content")
	}
	run.record("Compose the answer from the retrieved sources", actionSynthesizeAnswer, map[string]any{
		"question": question,
		"sources":  len(results),
	}, answer, err)
	if err != nil {
		run.finish(domain.StatusError, messageFailure)
		return
	}
	run.finish(domain.StatusSuccess, answer)
}

func (uc *AskUseCase) publish(ctx context.Context, run *askRun) {
	if uc.opts.Publisher == nil {
		return
	}
	event := domain.TraceEvent{
		ID:        run.result.TraceID,
		SessionID: run.result.SessionID,
		Question:  run.result.Question,
		Status:    run.result.Status,
		Answer:    run.result.Answer,
		Steps:     run.result.Trace,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.opts.Publisher.PublishTrace(ctx, event); err != nil {
		slog.Warn("ask_trace_publish_failed", "trace_id", event.ID, "error", err)
	}
}

// searchQueryFrom prefers the analyzer's rewritten query, then its keywords.
func searchQueryFrom(analysis domain.QueryAnalysis, question string) string {
	if q := strings.TrimSpace(analysis.SearchQuery); q != "" {
		return q
	}
	keywords := make([]string, 0, len(analysis.Keywords))
	for _, kw := range analysis.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) > 0 {
		return strings.Join(keywords, " ")
	}
	return question
}

type resultSummary struct {
	Key    string            `json:"key"`
	Source domain.SourceKind `json:"source"`
	Score  float64           `json:"score"`
}

func summarizeResults(results []domain.SearchResult) []resultSummary {
	out := make([]resultSummary, 0, len(results))
	for _, r := range results {
		out = append(out, resultSummary{Key: r.DedupKey(), Source: r.SourceKind, Score: r.ScoreValue()})
	}
	return out
}

type askRun struct {
	result domain.AskResult
}

func (r *askRun) record(thought, action string, input, observation any, err error) {
	step := domain.TraceStep{
		Step:        len(r.result.Trace) + 1,
		Thought:     thought,
		Action:      action,
		Input:       marshalTraceValue(input),
		Observation: marshalTraceValue(observation),
	}
	if err != nil {
		step.Error = err.Error()
	}
	r.result.Trace = append(r.result.Trace, step)
}

func (r *askRun) finish(status domain.AskStatus, answer string) {
	if r.result.Status.Terminal() {
		return
	}
	r.result.Status = status
	r.result.Answer = answer
}

func marshalTraceValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
)

type flakyEmbedder struct {
	failures int
	err      error
	calls    int
}

func (f *flakyEmbedder) Embed(_ context.Context, texts []string, _ domain.EmbeddingInputType) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (f *flakyEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text}, domain.InputTypeQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func recordingExecutor(waits *[]time.Duration) *Executor {
	return NewExecutor(EmbeddingRetryConfig(), WithSleep(func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}))
}

func TestRetryingEmbedderGivesUpAfterFourAttempts(t *testing.T) {
	var waits []time.Duration
	next := &flakyEmbedder{failures: 10, err: errors.New("429 too many requests")}
	embedder := NewRetryingEmbedder(next, recordingExecutor(&waits))

	_, err := embedder.EmbedQuery(context.Background(), "electronic signature")
	if !domain.IsKind(err, domain.ErrEmbedding) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if next.calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", next.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("expected waits %v, got %v", want, waits)
	}
	var total time.Duration
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("wait %d: expected %s, got %s", i, want[i], waits[i])
		}
		total += waits[i]
	}
	if total != 14*time.Second {
		t.Fatalf("expected 14s total backoff, got %s", total)
	}
}

func TestRetryingEmbedderRecoversAfterTransientFailures(t *testing.T) {
	var waits []time.Duration
	next := &flakyEmbedder{failures: 2, err: errors.New("connection reset")}
	embedder := NewRetryingEmbedder(next, recordingExecutor(&waits))

	vectors, err := embedder.Embed(context.Background(), []string{"a", "b"}, domain.InputTypeDocument)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 2 || next.calls != 3 || len(waits) != 2 {
		t.Fatalf("unexpected outcome vectors=%d calls=%d waits=%v", len(vectors), next.calls, waits)
	}
}

func TestRetryingEmbedderDoesNotRetryNotConfigured(t *testing.T) {
	var waits []time.Duration
	next := &flakyEmbedder{failures: 10, err: domain.WrapError(domain.ErrNotConfigured, "embed", errors.New("api key missing"))}
	embedder := NewRetryingEmbedder(next, recordingExecutor(&waits))

	_, err := embedder.EmbedQuery(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrNotConfigured) || !domain.IsKind(err, domain.ErrEmbedding) {
		t.Fatalf("expected wrapped not-configured error, got %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("expected single attempt, got %d", next.calls)
	}
}

func TestRetryingEmbedderStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	next := &flakyEmbedder{}
	embedder := NewRetryingEmbedder(next, NewExecutor(EmbeddingRetryConfig()))

	_, err := embedder.EmbedQuery(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if next.calls != 0 {
		t.Fatalf("expected no calls, got %d", next.calls)
	}
}

package resilience

import (
	"context"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/core/ports"
)

// RetryingEmbedder retries every non-context embedding failure and reports
// exhaustion as domain.ErrEmbedding.
type RetryingEmbedder struct {
	next     ports.Embedder
	executor *Executor
}

func NewRetryingEmbedder(next ports.Embedder, executor *Executor) *RetryingEmbedder {
	if executor == nil {
		executor = NewExecutor(EmbeddingRetryConfig())
	}
	return &RetryingEmbedder{next: next, executor: executor}
}

func (e *RetryingEmbedder) Embed(ctx context.Context, texts []string, inputType domain.EmbeddingInputType) ([][]float32, error) {
	vectors, err := Call(ctx, e.executor, "embed", func(callCtx context.Context) ([][]float32, error) {
		return e.next.Embed(callCtx, texts, inputType)
	}, classifyEmbeddingError)
	if err != nil {
		return nil, wrapEmbeddingError("embed", err)
	}
	return vectors, nil
}

func (e *RetryingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := Call(ctx, e.executor, "embed_query", func(callCtx context.Context) ([]float32, error) {
		return e.next.EmbedQuery(callCtx, text)
	}, classifyEmbeddingError)
	if err != nil {
		return nil, wrapEmbeddingError("embed query", err)
	}
	return vector, nil
}

func classifyEmbeddingError(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if IsContextError(err) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if domain.IsKind(err, domain.ErrNotConfigured) || domain.IsKind(err, domain.ErrInvalidInput) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return ErrorClassification{Retryable: true, RecordFailure: true}
}

func wrapEmbeddingError(operation string, err error) error {
	if IsContextError(err) || domain.IsKind(err, domain.ErrEmbedding) {
		return err
	}
	return domain.WrapError(domain.ErrEmbedding, operation, err)
}

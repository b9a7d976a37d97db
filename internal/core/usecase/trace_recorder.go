package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/core/ports"
)

type RecordTraceUseCase struct {
	repo ports.TraceRepository
}

func NewRecordTraceUseCase(repo ports.TraceRepository) *RecordTraceUseCase {
	return &RecordTraceUseCase{repo: repo}
}

func (uc *RecordTraceUseCase) Record(ctx context.Context, event domain.TraceEvent) error {
	if strings.TrimSpace(event.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record trace", fmt.Errorf("trace id is required"))
	}
	if !event.Status.Terminal() {
		return domain.WrapError(domain.ErrInvalidInput, "record trace", fmt.Errorf("trace status %q is not terminal", event.Status))
	}
	if err := uc.repo.Save(ctx, event); err != nil {
		return fmt.Errorf("save trace: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
)

func newTraceRepoWithMock(t *testing.T) (*TraceRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewTraceRepository(db), mock, func() { _ = db.Close() }
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newTraceRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ask_traces").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveInsertsTrace(t *testing.T) {
	repo, mock, done := newTraceRepoWithMock(t)
	defer done()

	createdAt := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO ask_traces").
		WithArgs("t-1", sql.NullString{}, "Co je úpadek?", "no_results", "No relevant legislation was found for this question.", []byte("[]"), createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), domain.TraceEvent{
		ID:        "t-1",
		Question:  "Co je úpadek?",
		Status:    domain.StatusNoResults,
		Answer:    "No relevant legislation was found for this question.",
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveWrapsDatabaseError(t *testing.T) {
	repo, mock, done := newTraceRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO ask_traces").WillReturnError(errors.New("connection reset"))

	err := repo.Save(context.Background(), domain.TraceEvent{ID: "t-1", Question: "q", Status: domain.StatusError})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newTraceRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, session_id, question, status").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDDecodesSteps(t *testing.T) {
	repo, mock, done := newTraceRepoWithMock(t)
	defer done()

	createdAt := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "session_id", "question", "status", "answer", "steps", "created_at"}).
		AddRow("t-2", "s-1", "q", "success", "answer", []byte(`[{"step":1,"thought":"t","action":"analyze_query"}]`), createdAt)
	mock.ExpectQuery("SELECT id, session_id, question, status").WithArgs("t-2").WillReturnRows(rows)

	event, err := repo.GetByID(context.Background(), "t-2")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if event.SessionID != "s-1" || event.Status != domain.StatusSuccess || len(event.Steps) != 1 || event.Steps[0].Action != "analyze_query" {
		t.Fatalf("unexpected event %+v", event)
	}
}

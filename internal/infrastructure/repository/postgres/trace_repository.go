package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
)

const schemaLockID int64 = 2026101501

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// TraceRepository stores finished ask traces for audit.
type TraceRepository struct {
	db *sql.DB
}

func NewTraceRepository(db *sql.DB) *TraceRepository {
	return &TraceRepository{db: db}
}

func (r *TraceRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS ask_traces (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	question TEXT NOT NULL,
	status TEXT NOT NULL,
	answer TEXT,
	steps JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ask_traces_session ON ask_traces(session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ask_traces_status ON ask_traces(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Save inserts the trace once; a redelivered event is a no-op.
func (r *TraceRepository) Save(ctx context.Context, event domain.TraceEvent) error {
	steps := event.Steps
	if steps == nil {
		steps = []domain.TraceStep{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("marshal trace steps: %w", err)
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO ask_traces (id, session_id, question, status, answer, steps, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`,
		event.ID, nullString(event.SessionID), event.Question, string(event.Status), event.Answer, stepsJSON, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}
	return nil
}

func (r *TraceRepository) GetByID(ctx context.Context, id string) (*domain.TraceEvent, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, session_id, question, status, answer, steps, created_at
FROM ask_traces
WHERE id = $1
`, id)

	var event domain.TraceEvent
	var sessionID, answer sql.NullString
	var status string
	var stepsRaw []byte

	err := row.Scan(&event.ID, &sessionID, &event.Question, &status, &answer, &stepsRaw, &event.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get trace", fmt.Errorf("trace %s", id))
		}
		return nil, fmt.Errorf("scan trace: %w", err)
	}

	if len(stepsRaw) > 0 {
		if err := json.Unmarshal(stepsRaw, &event.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal trace steps: %w", err)
		}
	}
	event.SessionID = sessionID.String
	event.Answer = answer.String
	event.Status = domain.AskStatus(status)
	return &event, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

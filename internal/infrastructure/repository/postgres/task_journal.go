package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bidassist/docingest/internal/core/domain"
)

// TaskJournal is an audit trail of ingestion tasks. Tasks are journaled
// without their payloads, so the table records only metadata and outcomes.
type TaskJournal struct {
	db *sql.DB
}

func NewTaskJournal(db *sql.DB) *TaskJournal {
	return &TaskJournal{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (j *TaskJournal) EnsureSchema(ctx context.Context) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent client startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS ingest_tasks (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	mime_type TEXT NOT NULL,
	page_count INT NOT NULL DEFAULT 0,
	document_id TEXT,
	status TEXT NOT NULL,
	progress_percent INT NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_ingest_tasks_status ON ingest_tasks(status);
CREATE INDEX IF NOT EXISTS idx_ingest_tasks_created_at ON ingest_tasks(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (j *TaskJournal) RecordCreated(ctx context.Context, task domain.UploadTask) error {
	_, err := j.db.ExecContext(ctx, `
INSERT INTO ingest_tasks (id, filename, size_bytes, mime_type, page_count, document_id, status, progress_percent, error_message, created_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, task.ID, task.Name, task.SizeBytes, task.MimeType, task.PageCount, nullString(task.DocumentID),
		string(task.Status), task.Progress.Overall(), nullString(task.ErrorMessage), task.CreatedAt, nullTime(task.CompletedAt))
	if err != nil {
		return fmt.Errorf("record task creation: %w", err)
	}
	return nil
}

func (j *TaskJournal) RecordTransition(ctx context.Context, task domain.UploadTask) error {
	result, err := j.db.ExecContext(ctx, `
UPDATE ingest_tasks
SET document_id = $2, status = $3, progress_percent = $4, error_message = $5, completed_at = $6
WHERE id = $1
`, task.ID, nullString(task.DocumentID), string(task.Status), task.Progress.Overall(),
		nullString(task.ErrorMessage), nullTime(task.CompletedAt))
	if err != nil {
		return fmt.Errorf("record task transition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record task transition rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("record task transition: %w: id=%s", domain.ErrTaskNotFound, task.ID)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

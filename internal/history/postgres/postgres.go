package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/puntaiq/aigate/internal/history"
)

// DB implements history.Store on PostgreSQL via the pgx stdlib driver.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS worker_history(
			id BIGSERIAL PRIMARY KEY,
			event TEXT NOT NULL,
			pid INTEGER NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			exit_code BIGINT NULL,
			detail TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_history_event ON worker_history(event);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_history_occurred ON worker_history(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Append(ctx context.Context, rec history.Record) error {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO worker_history(event, pid, started_at, occurred_at, exit_code, detail)
		VALUES($1, $2, $3, $4, $5, $6);`,
		string(rec.Event), rec.PID, rec.StartedAt.UTC(), rec.OccurredAt.UTC(), rec.ExitCode, rec.Detail)
	return err
}

func (p *DB) LastRestart(ctx context.Context) (history.Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT event, pid, started_at, occurred_at, exit_code, detail
		FROM worker_history WHERE event = $1 ORDER BY id DESC LIMIT 1;`,
		string(history.EventRestart))
	var rec history.Record
	var event string
	err := row.Scan(&event, &rec.PID, &rec.StartedAt, &rec.OccurredAt, &rec.ExitCode, &rec.Detail)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, history.ErrNoEvents
	}
	if err != nil {
		return rec, err
	}
	rec.Event = history.EventType(event)
	return rec, nil
}

func (p *DB) Recent(ctx context.Context, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT event, pid, started_at, occurred_at, exit_code, detail
		FROM worker_history ORDER BY id DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []history.Record
	for rows.Next() {
		var rec history.Record
		var event string
		if err := rows.Scan(&event, &rec.PID, &rec.StartedAt, &rec.OccurredAt, &rec.ExitCode, &rec.Detail); err != nil {
			return nil, err
		}
		rec.Event = history.EventType(event)
		out = append(out, rec)
	}
	return out, rows.Err()
}

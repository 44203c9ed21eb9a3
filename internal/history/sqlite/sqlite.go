package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/puntaiq/aigate/internal/history"
)

// DB implements history.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path. Use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS worker_history(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event TEXT NOT NULL,
			pid INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			exit_code INTEGER NULL,
			detail TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_history_event ON worker_history(event);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_history_occurred ON worker_history(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Append(ctx context.Context, rec history.Record) error {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_history(event, pid, started_at, occurred_at, exit_code, detail)
		VALUES(?, ?, ?, ?, ?, ?);`,
		string(rec.Event), rec.PID, rec.StartedAt.UTC(), rec.OccurredAt.UTC(), rec.ExitCode, rec.Detail)
	return err
}

func (s *DB) LastRestart(ctx context.Context) (history.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event, pid, started_at, occurred_at, exit_code, detail
		FROM worker_history WHERE event = ? ORDER BY id DESC LIMIT 1;`,
		string(history.EventRestart))
	return scanRecord(row)
}

func (s *DB) Recent(ctx context.Context, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT event, pid, started_at, occurred_at, exit_code, detail
		FROM worker_history ORDER BY id DESC LIMIT ?;`, limit)
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

type rowScanner interface{ Scan(dest ...any) error }

func scanRecord(row rowScanner) (history.Record, error) {
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

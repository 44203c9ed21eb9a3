package history

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// EventType defines the kind of worker lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventRestart EventType = "restart"
)

// ErrNoEvents is returned by queries over an empty history.
var ErrNoEvents = errors.New("history: no events recorded")

// Record is one appended lifecycle event. ExitCode is only valid for stop
// events; Detail carries a short human-readable note (exit error, operator).
type Record struct {
	Event      EventType     `json:"event"`
	PID        int           `json:"pid"`
	StartedAt  time.Time     `json:"started_at"`
	OccurredAt time.Time     `json:"occurred_at"`
	ExitCode   sql.NullInt64 `json:"exit_code"`
	Detail     string        `json:"detail,omitempty"`
}

// Store is an append-only persistence surface for worker lifecycle events.
// Implementations must be safe for concurrent use. A Store failure must never
// affect supervision; callers log and continue.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, rec Record) error
	// LastRestart returns the most recent restart record, so lastRestartAt
	// survives a supervisor cold start. ErrNoEvents when none exists.
	LastRestart(ctx context.Context) (Record, error)
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Config selects and configures a history backend.
type Config struct {
	Type  string `toml:"type" mapstructure:"type"` // "sqlite", "postgres", "clickhouse", "" = disabled
	DSN   string `toml:"dsn" mapstructure:"dsn"`
	Table string `toml:"table" mapstructure:"table"` // clickhouse only; default worker_history
}

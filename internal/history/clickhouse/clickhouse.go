package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/puntaiq/aigate/internal/history"
)

// DB implements history.Store on ClickHouse using the official Go client.
// Intended for fleets shipping lifecycle events into a shared analytics
// cluster rather than a per-host file.
type DB struct {
	conn  driver.Conn
	table string
}

func New(addr, table string) (*DB, error) {
	if table == "" {
		table = "worker_history"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &DB{conn: conn, table: table}, nil
}

func (c *DB) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		event String,
		pid Int64,
		started_at DateTime64(3),
		occurred_at DateTime64(3),
		exit_code Nullable(Int64),
		detail String
	) ENGINE = MergeTree() ORDER BY occurred_at`, c.table)
	return c.conn.Exec(ctx, ddl)
}

func (c *DB) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *DB) Append(ctx context.Context, rec history.Record) error {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	var exit *int64
	if rec.ExitCode.Valid {
		v := rec.ExitCode.Int64
		exit = &v
	}
	query := fmt.Sprintf(`INSERT INTO %s (event, pid, started_at, occurred_at, exit_code, detail) VALUES (?, ?, ?, ?, ?, ?)`, c.table)
	if err := c.conn.Exec(ctx, query,
		string(rec.Event), int64(rec.PID), rec.StartedAt.UTC(), rec.OccurredAt.UTC(), exit, rec.Detail,
	); err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

func (c *DB) LastRestart(ctx context.Context) (history.Record, error) {
	query := fmt.Sprintf(`SELECT event, pid, started_at, occurred_at, exit_code, detail
		FROM %s WHERE event = ? ORDER BY occurred_at DESC LIMIT 1`, c.table)
	rows, err := c.conn.Query(ctx, query, string(history.EventRestart))
	if err != nil {
		return history.Record{}, err
	}
	defer func() { _ = rows.Close() }()
	recs, err := scanRows(rows, 1)
	if err != nil {
		return history.Record{}, err
	}
	if len(recs) == 0 {
		return history.Record{}, history.ErrNoEvents
	}
	return recs[0], nil
}

func (c *DB) Recent(ctx context.Context, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT event, pid, started_at, occurred_at, exit_code, detail
		FROM %s ORDER BY occurred_at DESC LIMIT ?`, c.table)
	rows, err := c.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRows(rows, limit)
}

func scanRows(rows driver.Rows, limit int) ([]history.Record, error) {
	out := make([]history.Record, 0, limit)
	for rows.Next() {
		var (
			event    string
			pid      int64
			started  time.Time
			occurred time.Time
			exit     *int64
			detail   string
		)
		if err := rows.Scan(&event, &pid, &started, &occurred, &exit, &detail); err != nil {
			return nil, err
		}
		rec := history.Record{
			Event:      history.EventType(event),
			PID:        int(pid),
			StartedAt:  started,
			OccurredAt: occurred,
			Detail:     detail,
		}
		if exit != nil {
			rec.ExitCode.Int64 = *exit
			rec.ExitCode.Valid = true
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/puntaiq/aigate/internal/history"
)

// setupClickHouseContainer starts a ClickHouse container and returns its
// native-protocol address.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	container, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start ClickHouse container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}
	return container, host + ":" + port.Port()
}

func TestClickHouseStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	container, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	db, err := New(addr, "worker_history_test")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	}()

	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	if _, err := db.LastRestart(ctx); !errors.Is(err, history.ErrNoEvents) {
		t.Fatalf("LastRestart on empty history = %v, want ErrNoEvents", err)
	}

	base := time.Now().Add(-time.Minute).UTC()
	events := []history.Record{
		{Event: history.EventStart, PID: 300, StartedAt: base, OccurredAt: base},
		{Event: history.EventStop, PID: 300, StartedAt: base, OccurredAt: base.Add(10 * time.Second), ExitCode: sql.NullInt64{Int64: 0, Valid: true}},
		{Event: history.EventRestart, PID: 301, StartedAt: base, OccurredAt: base.Add(11 * time.Second), Detail: "operator"},
	}
	for _, rec := range events {
		if err := db.Append(ctx, rec); err != nil {
			t.Fatalf("Append(%s): %v", rec.Event, err)
		}
	}

	last, err := db.LastRestart(ctx)
	if err != nil {
		t.Fatalf("LastRestart: %v", err)
	}
	if last.Event != history.EventRestart || last.PID != 301 {
		t.Fatalf("LastRestart = %+v", last)
	}

	recs, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Recent returned %d records, want 3", len(recs))
	}
	if recs[0].Event != history.EventRestart {
		t.Errorf("Recent should be newest first, got %s", recs[0].Event)
	}
}

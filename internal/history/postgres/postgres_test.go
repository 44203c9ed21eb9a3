package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/puntaiq/aigate/internal/history"
)

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	db, err := New(connStr)
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

	started := time.Now().Add(-time.Minute).UTC()
	events := []history.Record{
		{Event: history.EventStart, PID: 200, StartedAt: started},
		{Event: history.EventStop, PID: 200, StartedAt: started, ExitCode: sql.NullInt64{Int64: 1, Valid: true}, Detail: "exit status 1"},
		{Event: history.EventRestart, PID: 201, StartedAt: started, Detail: "operator"},
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
	if last.Event != history.EventRestart || last.PID != 201 {
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
	if !recs[1].ExitCode.Valid || recs[1].ExitCode.Int64 != 1 {
		t.Errorf("stop exit code = %+v, want 1", recs[1].ExitCode)
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/puntaiq/aigate/internal/history"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return db
}

func TestNewEmptyPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("empty path should fail")
	}
}

func TestEmptyHistory(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.LastRestart(context.Background()); !errors.Is(err, history.ErrNoEvents) {
		t.Fatalf("LastRestart on empty history = %v, want ErrNoEvents", err)
	}
	recs, err := db.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no records, got %d", len(recs))
	}
}

func TestAppendAndQuery(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute).UTC()

	events := []history.Record{
		{Event: history.EventStart, PID: 100, StartedAt: started},
		{Event: history.EventStop, PID: 100, StartedAt: started, ExitCode: sql.NullInt64{Int64: 0, Valid: true}},
		{Event: history.EventRestart, PID: 101, StartedAt: started, Detail: "operator"},
		{Event: history.EventRestart, PID: 102, StartedAt: started, Detail: "operator"},
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
	if last.Event != history.EventRestart || last.PID != 102 {
		t.Fatalf("LastRestart returned %+v, want the newest restart", last)
	}
	if last.OccurredAt.IsZero() {
		t.Error("Append should default OccurredAt")
	}

	recs, err := db.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Recent(3) returned %d records", len(recs))
	}
	if recs[0].Event != history.EventRestart || recs[0].PID != 102 {
		t.Errorf("Recent should be newest first, got %+v", recs[0])
	}
}

func TestExitCodeRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Append(ctx, history.Record{
		Event:    history.EventStop,
		PID:      55,
		ExitCode: sql.NullInt64{Int64: 137, Valid: true},
		Detail:   "signal: killed",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := db.Append(ctx, history.Record{Event: history.EventStart, PID: 56}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	recs, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	// newest first: start has no exit code, stop carries 137
	if recs[0].ExitCode.Valid {
		t.Errorf("start record should have NULL exit code: %+v", recs[0].ExitCode)
	}
	if !recs[1].ExitCode.Valid || recs[1].ExitCode.Int64 != 137 {
		t.Errorf("stop record exit code = %+v, want 137", recs[1].ExitCode)
	}
}

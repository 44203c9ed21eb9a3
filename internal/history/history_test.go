package history

import (
	"database/sql"
	"testing"
	"time"
)

func TestRecordFields(t *testing.T) {
	now := time.Now().UTC()
	rec := Record{
		Event:      EventStop,
		PID:        4242,
		StartedAt:  now.Add(-time.Minute),
		OccurredAt: now,
		ExitCode:   sql.NullInt64{Int64: 137, Valid: true},
		Detail:     "signal: killed",
	}
	if rec.Event != EventStop {
		t.Errorf("event = %s", rec.Event)
	}
	if !rec.ExitCode.Valid || rec.ExitCode.Int64 != 137 {
		t.Errorf("exit code = %+v", rec.ExitCode)
	}
}

func TestEventTypes(t *testing.T) {
	for _, e := range []EventType{EventStart, EventStop, EventRestart} {
		if e == "" {
			t.Error("event type must not be empty")
		}
	}
	if EventStart == EventStop || EventStop == EventRestart {
		t.Error("event types must be distinct")
	}
}

package health

import (
	"sync"
	"testing"
	"time"
)

func TestAggregator_InitialOffline(t *testing.T) {
	agg := NewAggregator()
	snap := agg.Get()
	if snap.State != StateOffline {
		t.Fatalf("fresh aggregator should be offline, got %s", snap.State)
	}
	if snap.Message == "" {
		t.Error("fresh aggregator should explain why it is offline")
	}
	if agg.Age(time.Now()) != 0 {
		t.Error("age before any probe should be zero")
	}
}

func TestAggregator_SetGet(t *testing.T) {
	agg := NewAggregator()
	at := time.Now().Add(-2 * time.Second)
	agg.Set(&Snapshot{State: StateOnline, Message: "worker is running", LastCheckedAt: at})

	snap := agg.Get()
	if snap.State != StateOnline {
		t.Fatalf("expected online, got %s", snap.State)
	}
	if age := agg.Age(time.Now()); age < 2*time.Second {
		t.Errorf("age should be at least 2s, got %s", age)
	}
}

func TestAggregator_ConcurrentReaders(t *testing.T) {
	agg := NewAggregator()
	done := make(chan struct{})
	var wg sync.WaitGroup

	// One writer, many readers hammering Get. Run with -race.
	wg.Add(1)
	go func() {
		defer wg.Done()
		states := []State{StateOnline, StateDegraded, StateOffline}
		for i := 0; i < 1000; i++ {
			agg.Set(&Snapshot{State: states[i%len(states)], LastCheckedAt: time.Now()})
		}
		close(done)
	}()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := agg.Get()
				switch snap.State {
				case StateOnline, StateDegraded, StateOffline:
				default:
					t.Errorf("torn snapshot state %q", snap.State)
					return
				}
			}
		}()
	}
	wg.Wait()
}

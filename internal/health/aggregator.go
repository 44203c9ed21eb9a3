package health

import (
	"sync/atomic"
	"time"
)

// Aggregator caches the last completed probe's Snapshot. Get never probes and
// never blocks Set; sharing is resolved by immutability plus atomic pointer
// replacement, so there are no locks on either path. No operation can fail.
type Aggregator struct {
	snap atomic.Pointer[Snapshot]
}

// NewAggregator starts offline: no probe has been issued yet.
func NewAggregator() *Aggregator {
	a := &Aggregator{}
	a.snap.Store(&Snapshot{
		State:   StateOffline,
		Message: "no health probe has completed yet",
	})
	return a
}

// Get returns the latest snapshot. The returned value is shared and must be
// treated as read-only.
func (a *Aggregator) Get() *Snapshot { return a.snap.Load() }

// Set atomically replaces the snapshot. The Prober is the only writer.
func (a *Aggregator) Set(s *Snapshot) { a.snap.Store(s) }

// Age reports how stale the cached snapshot is.
func (a *Aggregator) Age(now time.Time) time.Duration {
	s := a.Get()
	if s.LastCheckedAt.IsZero() {
		return 0
	}
	return now.Sub(s.LastCheckedAt)
}

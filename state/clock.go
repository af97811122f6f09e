package state

import (
	"sync"
	"sync/atomic"
	"time"
)

// FutureOffsetMillis is added to the drift timestamp to build the sentinel
// written over every route after a drift reset: 50 years, far beyond any
// timestamp a client could have legitimately cached.
const FutureOffsetMillis = 50 * 365 * 24 * 60 * 60 * 1000

// Guard serializes the wall-clock monotonicity check that gates every
// invalidation. The wall clock can jump backward (NTP correction, VM
// pause); if an invalidation were stamped behind a timestamp a client
// already observed, the client would never learn about it. Guard turns a
// backward jump into a detectable drift event.
//
// Only the compare-and-store runs under the mutex; recovery and all
// broadcasting happen after release.
type Guard struct {
	mu           sync.Mutex
	lastObserved int64
	lastDrift    atomic.Int64
	now          func() int64
}

// NewGuard creates a Guard reading timestamps from now, or from the system
// clock when now is nil. The drift provenance value starts at the current
// time, so deltas issued before any drift carry the process start time.
func NewGuard(now func() int64) *Guard {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	g := &Guard{now: now}
	g.lastDrift.Store(now())
	return g
}

// Observe stamps one invalidation request. It returns the wall-clock time
// to record and whether a backward jump was detected. On drift the tracked
// value resets to zero so the next request re-baselines instead of
// re-triggering against a stale high-water mark.
func (g *Guard) Observe() (now int64, driftDetected bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now = g.now()
	prev := g.lastObserved

	if prev > 0 && now < prev {
		g.lastObserved = 0
		return now, true
	}

	g.lastObserved = now
	return now, false
}

// MarkDrift records the recovery timestamp for a detected drift and returns
// it. The value is attached as provenance to every subsequent delta until
// the next drift event.
func (g *Guard) MarkDrift() int64 {
	drift := g.now()
	g.lastDrift.Store(drift)
	return drift
}

// SetDriftTime overwrites the drift provenance value. Used when applying a
// drift reset received from another instance.
func (g *Guard) SetDriftTime(ts int64) {
	g.lastDrift.Store(ts)
}

// DriftTime returns the current drift provenance value.
func (g *Guard) DriftTime() int64 {
	return g.lastDrift.Load()
}

// Sentinel returns the far-future timestamp written over every route after
// the drift at driftTime.
func Sentinel(driftTime int64) int64 {
	return driftTime + FutureOffsetMillis
}

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeClock returns successive values from the given sequence, repeating
// the last one when exhausted.
func fakeClock(values ...int64) func() int64 {
	i := 0
	return func() int64 {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

func TestObserveForwardClock(t *testing.T) {
	// First value is consumed by NewGuard for the drift baseline.
	g := NewGuard(fakeClock(50, 100, 200, 200))

	now, drift := g.Observe()
	assert.Equal(t, int64(100), now)
	assert.False(t, drift)

	now, drift = g.Observe()
	assert.Equal(t, int64(200), now)
	assert.False(t, drift)

	// An equal timestamp is not drift.
	now, drift = g.Observe()
	assert.Equal(t, int64(200), now)
	assert.False(t, drift)
}

func TestObserveDetectsBackwardJump(t *testing.T) {
	g := NewGuard(fakeClock(50, 1000, 900))

	_, drift := g.Observe()
	assert.False(t, drift)

	now, drift := g.Observe()
	assert.Equal(t, int64(900), now)
	assert.True(t, drift)
}

func TestObserveRebaselinesAfterDrift(t *testing.T) {
	g := NewGuard(fakeClock(50, 1000, 900, 950))

	g.Observe()
	_, drift := g.Observe()
	assert.True(t, drift)

	// Tracking was reset to zero, so 950 < 1000 no longer re-triggers.
	now, drift := g.Observe()
	assert.Equal(t, int64(950), now)
	assert.False(t, drift)
}

func TestFirstObservationNeverDrifts(t *testing.T) {
	g := NewGuard(fakeClock(50, 10))

	// prev is zero on the very first request; even a tiny timestamp is
	// accepted as the new baseline.
	now, drift := g.Observe()
	assert.Equal(t, int64(10), now)
	assert.False(t, drift)
}

func TestDriftTimeProvenance(t *testing.T) {
	g := NewGuard(fakeClock(50, 1000, 900, 940))

	// Before any drift, provenance is the construction-time clock value.
	assert.Equal(t, int64(50), g.DriftTime())

	g.Observe()
	_, drift := g.Observe()
	assert.True(t, drift)

	marked := g.MarkDrift()
	assert.Equal(t, int64(940), marked)
	assert.Equal(t, int64(940), g.DriftTime())
}

func TestSetDriftTime(t *testing.T) {
	g := NewGuard(fakeClock(50))

	g.SetDriftTime(7777)
	assert.Equal(t, int64(7777), g.DriftTime())
}

func TestSentinelIsFarFuture(t *testing.T) {
	drift := int64(1_700_000_000_000)
	sentinel := Sentinel(drift)

	const day = int64(24 * 60 * 60 * 1000)
	assert.Greater(t, sentinel, drift+int64(FutureOffsetMillis)-day)
	assert.Equal(t, drift+int64(FutureOffsetMillis), sentinel)
}

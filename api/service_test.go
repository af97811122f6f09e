package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santoshkurmi/pro-cache-testing/broker"
	"github.com/Santoshkurmi/pro-cache-testing/state"
)

func TestApplyRemoteDelta(t *testing.T) {
	f := newFixture(fakeClock(10))
	s := joinSession(f, "s1", "p1", "u1")

	f.svc.ApplyRemote(broker.Event{
		OriginID:  "origin-2",
		Kind:      broker.KindDelta,
		ProjectID: "p1",
		Paths:     []string{"/a", "/b"},
		Timestamp: 5000,
		DriftTime: 10,
	})

	// The carried timestamp is authoritative; no local re-stamping.
	snap := f.store.Snapshot("p1")
	assert.Equal(t, int64(5000), snap["/a"])
	assert.Equal(t, int64(5000), snap["/b"])

	msg := receivedMessage(t, s)
	assert.Equal(t, MessageTypeDelta, msg.Type)
	assert.Equal(t, int64(5000), msg.Data["/a"])
}

func TestApplyRemoteIgnoresOwnEvents(t *testing.T) {
	f := newFixture(fakeClock(10))
	s := joinSession(f, "s1", "p1", "u1")

	f.svc.ApplyRemote(broker.Event{
		OriginID:  "origin-1", // the fixture's own origin
		Kind:      broker.KindDelta,
		ProjectID: "p1",
		Paths:     []string{"/a"},
		Timestamp: 5000,
	})

	assert.Empty(t, f.store.Snapshot("p1"))
	select {
	case <-s.Outbound:
		t.Fatal("looped-back event must not be re-applied")
	default:
	}
}

func TestApplyRemoteDrift(t *testing.T) {
	f := newFixture(fakeClock(10, 1000))
	s1 := joinSession(f, "s1", "p1", "u1")
	s2 := joinSession(f, "s2", "p2", "u2")

	res, err := f.svc.Invalidate("p1", []string{"/a"}, "")
	require.NoError(t, err)
	require.False(t, res.ClockReset)
	receivedMessage(t, s1)

	f.svc.ApplyRemote(broker.Event{
		OriginID:  "origin-2",
		Kind:      broker.KindDrift,
		DriftTime: 7000,
	})

	assert.Equal(t, int64(7000), f.svc.guard.DriftTime())
	assert.Equal(t, state.Sentinel(7000), f.store.Snapshot("p1")["/a"])

	msg := receivedMessage(t, s1)
	assert.Equal(t, MessageTypeDrift, msg.Type)
	assert.Equal(t, int64(7000), msg.DriftTime)

	msg = receivedMessage(t, s2)
	assert.Equal(t, MessageTypeDrift, msg.Type)
}

func TestApplyRemoteDeltaRespectsUserFilter(t *testing.T) {
	f := newFixture(fakeClock(10))
	s1 := joinSession(f, "s1", "p1", "u1")
	s2 := joinSession(f, "s2", "p1", "u2")

	f.svc.ApplyRemote(broker.Event{
		OriginID:  "origin-2",
		Kind:      broker.KindDelta,
		ProjectID: "p1",
		UserID:    "u1",
		Paths:     []string{"/a"},
		Timestamp: 5000,
	})

	receivedMessage(t, s1)
	select {
	case <-s2.Outbound:
		t.Fatal("filtered-out session must not receive the relayed delta")
	default:
	}
}

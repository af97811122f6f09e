package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	r.Register("tok-1", "u1", "p1", 3600)

	cred, ok := r.Lookup("tok-1")
	require.True(t, ok)
	assert.Equal(t, "u1", cred.UserID)
	assert.Equal(t, "p1", cred.ProjectID)
	assert.Equal(t, uint64(3600), cred.TTL)
	assert.False(t, cred.IssuedAt.IsZero())
}

func TestLookupUnknownToken(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}

func TestRegisterSupersedesOldToken(t *testing.T) {
	r := NewRegistry()

	r.Register("tok-old", "u1", "p1", 0)
	r.Register("tok-new", "u1", "p1", 0)

	_, ok := r.Lookup("tok-old")
	assert.False(t, ok, "superseded token must be unusable for admission")

	cred, ok := r.Lookup("tok-new")
	require.True(t, ok)
	assert.Equal(t, "u1", cred.UserID)
}

func TestSupersessionIsScopedToProjectUserPair(t *testing.T) {
	r := NewRegistry()

	r.Register("tok-a", "u1", "p1", 0)
	r.Register("tok-b", "u1", "p2", 0) // same user, different project
	r.Register("tok-c", "u2", "p1", 0) // same project, different user

	_, ok := r.Lookup("tok-a")
	assert.True(t, ok)
	_, ok = r.Lookup("tok-b")
	assert.True(t, ok)
	_, ok = r.Lookup("tok-c")
	assert.True(t, ok)
}

func TestReRegisterSameToken(t *testing.T) {
	r := NewRegistry()

	r.Register("tok-1", "u1", "p1", 100)
	r.Register("tok-1", "u1", "p1", 200)

	cred, ok := r.Lookup("tok-1")
	require.True(t, ok)
	assert.Equal(t, uint64(200), cred.TTL)
}

func TestZeroTTLGetsDefault(t *testing.T) {
	r := NewRegistry()

	r.Register("tok-1", "u1", "p1", 0)

	cred, ok := r.Lookup("tok-1")
	require.True(t, ok)
	assert.Equal(t, uint64(defaultTTLSeconds), cred.TTL)
}

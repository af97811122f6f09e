package token

import (
	"sync"
	"time"
)

const defaultTTLSeconds = 86400 // 24 hours

// Credential authorizes one (project, user) pair for session admission.
// TTL is recorded for observability but not enforced at lookup time; the
// supersession rule in Register is the effective revocation mechanism.
type Credential struct {
	Token     string
	UserID    string
	ProjectID string
	IssuedAt  time.Time
	TTL       uint64 // Seconds
}

type userKey struct {
	projectID string
	userID    string
}

// Registry maps opaque tokens to the credential they carry. At most one
// live credential exists per (project, user) pair: registering a new token
// for a pair removes the prior token from the lookup table.
type Registry struct {
	mu      sync.RWMutex
	byToken map[string]Credential
	byUser  map[userKey]string
}

// NewRegistry creates an empty credential registry.
func NewRegistry() *Registry {
	return &Registry{
		byToken: make(map[string]Credential),
		byUser:  make(map[userKey]string),
	}
}

// Register inserts or overwrites the credential for tok. If the (project,
// user) pair already holds a different token, that token is removed first,
// so the swap is atomic from the perspective of concurrent lookups.
func (r *Registry) Register(tok, userID, projectID string, ttl uint64) {
	if ttl == 0 {
		ttl = defaultTTLSeconds
	}
	cred := Credential{
		Token:     tok,
		UserID:    userID,
		ProjectID: projectID,
		IssuedAt:  time.Now(),
		TTL:       ttl,
	}

	key := userKey{projectID: projectID, userID: userID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byUser[key]; ok && old != tok {
		delete(r.byToken, old)
	}
	r.byToken[tok] = cred
	r.byUser[key] = tok
}

// Lookup returns the credential for tok, if one is registered.
func (r *Registry) Lookup(tok string) (Credential, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.byToken[tok]
	return cred, ok
}

package registry

import (
	"sync"

	"github.com/Santoshkurmi/pro-cache-testing/metrics"
)

// Session is one live push connection, scoped to exactly one project and
// one user. The lifecycle handler owns the connection; the registry only
// holds the outbound channel broadcasts are pushed through.
type Session struct {
	ID        string
	ProjectID string
	UserID    string
	Outbound  chan []byte
}

// Registry tracks connected sessions per project. Joins, leaves and
// broadcasts on unrelated projects never block each other.
type Registry struct {
	projects sync.Map // projectID -> *sync.Map (sessionID -> *Session)
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Join registers a session under its project.
func (r *Registry) Join(s *Session) {
	m, _ := r.projects.LoadOrStore(s.ProjectID, &sync.Map{})
	m.(*sync.Map).Store(s.ID, s)
}

// Leave removes a session. Idempotent: safe when the project bucket is
// absent or the session was already removed.
func (r *Registry) Leave(projectID, sessionID string) {
	if m, ok := r.projects.Load(projectID); ok {
		m.(*sync.Map).Delete(sessionID)
	}
}

// Broadcast pushes payload to every session in the project, optionally
// restricted to sessions belonging to userFilter. Delivery is best-effort:
// a full or closed outbound channel drops the message for that session
// only. Sessions joining or leaving mid-iteration may miss or receive the
// message; the contract is not transactional. Returns the number of
// matching sessions, counting drops.
func (r *Registry) Broadcast(projectID string, payload []byte, userFilter string) int {
	m, ok := r.projects.Load(projectID)
	if !ok {
		return 0
	}
	return deliver(m.(*sync.Map), payload, userFilter)
}

// BroadcastAll pushes payload to every session in every project. Used only
// by drift recovery.
func (r *Registry) BroadcastAll(payload []byte) int {
	count := 0
	r.projects.Range(func(_, v any) bool {
		count += deliver(v.(*sync.Map), payload, "")
		return true
	})
	return count
}

// Count returns the number of live sessions in the project.
func (r *Registry) Count(projectID string) int {
	m, ok := r.projects.Load(projectID)
	if !ok {
		return 0
	}
	n := 0
	m.(*sync.Map).Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func deliver(sessions *sync.Map, payload []byte, userFilter string) int {
	count := 0
	sessions.Range(func(_, v any) bool {
		s := v.(*Session)
		if userFilter != "" && s.UserID != userFilter {
			return true
		}
		count++
		select {
		case s.Outbound <- payload:
		default:
			metrics.MessagesDropped.Inc()
		}
		return true
	})
	return count
}

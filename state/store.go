package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store tracks the latest invalidation timestamp per (project, route) and
// the global set of route paths ever seen. Both structures are shared by
// every request handler and push session; per-key access never blocks
// unrelated keys.
type Store struct {
	projects    sync.Map // projectID -> *sync.Map (route -> int64 millis)
	knownRoutes sync.Map // route -> struct{}
	serverStart int64
}

// NewStore creates an empty store. serverStart is the baseline timestamp
// assigned to catalog routes in initial snapshots.
func NewStore() *Store {
	return &Store{serverStart: time.Now().UnixMilli()}
}

// ServerStart returns the store's creation timestamp in epoch millis.
func (s *Store) ServerStart() int64 {
	return s.serverStart
}

// NormalizePath renders a decoded JSON value to its canonical route key.
// Strings pass through unchanged; numbers render to their decimal literal,
// so the number 42 and the string "42" address the same route. Callers must
// decode request bodies with UseNumber() for the numeric case to hold.
func NormalizePath(v any) string {
	switch p := v.(type) {
	case string:
		return p
	case json.Number:
		return p.String()
	default:
		return fmt.Sprintf("%v", p)
	}
}

// RecordInvalidation upserts the timestamp for (projectID, route), creating
// the per-project map on first use. Pure overwrite: timestamp ordering is
// the caller's responsibility.
func (s *Store) RecordInvalidation(projectID, route string, ts int64) {
	m, _ := s.projects.LoadOrStore(projectID, &sync.Map{})
	m.(*sync.Map).Store(route, ts)
}

// RegisterRouteIfNew adds route to the known-routes set and reports whether
// it was absent.
func (s *Store) RegisterRouteIfNew(route string) bool {
	_, loaded := s.knownRoutes.LoadOrStore(route, struct{}{})
	return !loaded
}

// SeedRoutes loads a persisted route catalog, typically at startup.
func (s *Store) SeedRoutes(routes []string) {
	for _, r := range routes {
		s.knownRoutes.Store(r, struct{}{})
	}
}

// KnownRoutes returns the catalog as a sorted slice, the form it is
// persisted in.
func (s *Store) KnownRoutes() []string {
	var routes []string
	s.knownRoutes.Range(func(k, _ any) bool {
		routes = append(routes, k.(string))
		return true
	})
	sort.Strings(routes)
	return routes
}

// Snapshot returns a copy of the project's recorded route timestamps. An
// empty map is the normal result for a project with no invalidations yet.
func (s *Store) Snapshot(projectID string) map[string]int64 {
	snap := make(map[string]int64)
	m, ok := s.projects.Load(projectID)
	if !ok {
		return snap
	}
	m.(*sync.Map).Range(func(k, v any) bool {
		snap[k.(string)] = v.(int64)
		return true
	})
	return snap
}

// InitialSnapshot builds the state sent to a newly admitted session: every
// catalog route at the server-start baseline, overlaid with the project's
// own recorded timestamps. Routes invalidated in this project but absent
// from the catalog (possible after a catalog reload) are still included.
func (s *Store) InitialSnapshot(projectID string) map[string]int64 {
	snap := make(map[string]int64)
	s.knownRoutes.Range(func(k, _ any) bool {
		snap[k.(string)] = s.serverStart
		return true
	})
	if m, ok := s.projects.Load(projectID); ok {
		m.(*sync.Map).Range(func(k, v any) bool {
			snap[k.(string)] = v.(int64)
			return true
		})
	}
	return snap
}

// ResetAll overwrites every recorded (project, route) timestamp with ts.
// Used only by drift recovery, where ts is a far-future sentinel.
func (s *Store) ResetAll(ts int64) {
	s.projects.Range(func(_, v any) bool {
		m := v.(*sync.Map)
		m.Range(func(k, _ any) bool {
			m.Store(k, ts)
			return true
		})
		return true
	})
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Santoshkurmi/pro-cache-testing/broker"
	"github.com/Santoshkurmi/pro-cache-testing/metrics"
	"github.com/Santoshkurmi/pro-cache-testing/registry"
	"github.com/Santoshkurmi/pro-cache-testing/routes"
	"github.com/Santoshkurmi/pro-cache-testing/state"
	"github.com/Santoshkurmi/pro-cache-testing/token"
)

// Push message types understood by connected clients.
const (
	MessageTypeDelta = "invalidate-delta"
	MessageTypeDrift = "invalidate"
)

// PushMessage is the envelope for every post-snapshot server-to-client
// message. Delta messages carry only the routes changed by the triggering
// request; drift messages carry an empty data object and signal a full
// local cache clear.
type PushMessage struct {
	Type      string           `json:"type"`
	Data      map[string]int64 `json:"data"`
	DriftTime int64            `json:"drift_time"`
}

// Result is the outcome of one invalidation submission. ClockReset marks
// the distinguished drift outcome: not an error, but it short-circuits the
// normal route-update path (the triggering request's own paths are not
// separately recorded; the global reset subsumes them).
type Result struct {
	ClockReset     bool
	Timestamp      int64
	DriftTime      int64
	BroadcastCount int
	AffectedPaths  int
}

// Service orchestrates the invalidation flow: clock guard, state store,
// session fan-out and the optional cross-instance relay.
type Service struct {
	originID     string
	tokens       *token.Registry
	store        *state.Store
	guard        *state.Guard
	sessions     *registry.Registry
	routeStore   routes.Store
	relay        broker.MessageBroker // nil when the relay is disabled
	relayChannel string
}

// NewService wires the invalidation service. relay may be nil.
func NewService(originID string, tokens *token.Registry, store *state.Store, guard *state.Guard,
	sessions *registry.Registry, routeStore routes.Store, relay broker.MessageBroker, relayChannel string) *Service {
	return &Service{
		originID:     originID,
		tokens:       tokens,
		store:        store,
		guard:        guard,
		sessions:     sessions,
		routeStore:   routeStore,
		relay:        relay,
		relayChannel: relayChannel,
	}
}

// RegisterToken records a credential, superseding any prior token held by
// the same (project, user) pair.
func (s *Service) RegisterToken(tok, userID, projectID string, ttl uint64) {
	s.tokens.Register(tok, userID, projectID, ttl)
}

// Invalidate runs one invalidation request end to end. paths must be
// normalized and non-empty. An error is returned only for serialization
// failure of the outbound message; every other outcome is a Result.
func (s *Service) Invalidate(projectID string, paths []string, userFilter string) (Result, error) {
	timestamp, driftDetected := s.guard.Observe()

	if driftDetected {
		log.Printf("[ClockDrift] Detected backward clock jump at %d. Triggering future-dated invalidations.", timestamp)
		return s.recoverFromDrift(), nil
	}

	// Register newly-seen routes; persistence is fire-and-forget.
	newRoutes := false
	for _, p := range paths {
		if s.store.RegisterRouteIfNew(p) {
			newRoutes = true
		}
	}
	if newRoutes {
		routes.SaveAsync(s.routeStore, s.store.KnownRoutes())
	}

	driftTime := s.guard.DriftTime()
	delta := make(map[string]int64, len(paths))
	for _, p := range paths {
		s.store.RecordInvalidation(projectID, p, timestamp)
		delta[p] = timestamp
	}

	payload, err := json.Marshal(PushMessage{
		Type:      MessageTypeDelta,
		Data:      delta,
		DriftTime: driftTime,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to serialize delta message: %w", err)
	}

	// Broadcasting always happens outside the clock critical section.
	count := s.sessions.Broadcast(projectID, payload, userFilter)
	metrics.InvalidationsTotal.Inc()

	s.publishRelay(broker.Event{
		OriginID:  s.originID,
		Kind:      broker.KindDelta,
		ProjectID: projectID,
		UserID:    userFilter,
		Paths:     paths,
		Timestamp: timestamp,
		DriftTime: driftTime,
	})

	return Result{
		Timestamp:      timestamp,
		DriftTime:      driftTime,
		BroadcastCount: count,
		AffectedPaths:  len(paths),
	}, nil
}

// recoverFromDrift performs the global conservative recovery: stamp a fresh
// drift timestamp, force every stored route timestamp to a far-future
// sentinel, and tell every session in every project to clear its cache.
func (s *Service) recoverFromDrift() Result {
	driftTime := s.guard.MarkDrift()
	metrics.DriftResets.Inc()

	s.store.ResetAll(state.Sentinel(driftTime))

	payload, err := json.Marshal(PushMessage{
		Type:      MessageTypeDrift,
		Data:      map[string]int64{},
		DriftTime: driftTime,
	})
	if err != nil {
		// The drift message has a fixed shape; this cannot fail absent
		// programmer error.
		log.Printf("Failed to serialize drift message: %v", err)
		return Result{ClockReset: true, DriftTime: driftTime}
	}

	s.sessions.BroadcastAll(payload)

	s.publishRelay(broker.Event{
		OriginID:  s.originID,
		Kind:      broker.KindDrift,
		DriftTime: driftTime,
	})

	return Result{ClockReset: true, DriftTime: driftTime}
}

// publishRelay hands an event to the relay broker without blocking the
// request path. Failures are logged only; the relay is best-effort.
func (s *Service) publishRelay(event broker.Event) {
	if s.relay == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.relay.Publish(ctx, s.relayChannel, event); err != nil {
			log.Printf("Failed to publish relay event for project %s: %v", event.ProjectID, err)
			return
		}
		metrics.BrokerMessagesPublished.WithLabelValues(s.relay.Type()).Inc()
	}()
}

// RunRelay subscribes to the relay channel and applies peer events until
// ctx is cancelled. No-op when the relay is disabled.
func (s *Service) RunRelay(ctx context.Context) error {
	if s.relay == nil {
		return nil
	}

	events, err := s.relay.Subscribe(ctx, s.relayChannel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to relay channel: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				log.Println("Relay event channel closed")
				return nil
			}
			s.ApplyRemote(event)
		}
	}
}

// ApplyRemote applies an invalidation event minted by a peer instance. The
// carried timestamps are authoritative; the local drift guard only judges
// timestamps this instance mints itself. Events originated here are
// ignored.
func (s *Service) ApplyRemote(event broker.Event) {
	if event.OriginID == s.originID {
		return
	}
	if s.relay != nil {
		metrics.BrokerMessagesReceived.WithLabelValues(s.relay.Type()).Inc()
	}

	switch event.Kind {
	case broker.KindDrift:
		s.guard.SetDriftTime(event.DriftTime)
		s.store.ResetAll(state.Sentinel(event.DriftTime))

		payload, err := json.Marshal(PushMessage{
			Type:      MessageTypeDrift,
			Data:      map[string]int64{},
			DriftTime: event.DriftTime,
		})
		if err != nil {
			log.Printf("Failed to serialize relayed drift message: %v", err)
			return
		}
		s.sessions.BroadcastAll(payload)

	case broker.KindDelta:
		newRoutes := false
		for _, p := range event.Paths {
			if s.store.RegisterRouteIfNew(p) {
				newRoutes = true
			}
		}
		if newRoutes {
			routes.SaveAsync(s.routeStore, s.store.KnownRoutes())
		}

		delta := make(map[string]int64, len(event.Paths))
		for _, p := range event.Paths {
			s.store.RecordInvalidation(event.ProjectID, p, event.Timestamp)
			delta[p] = event.Timestamp
		}

		payload, err := json.Marshal(PushMessage{
			Type:      MessageTypeDelta,
			Data:      delta,
			DriftTime: event.DriftTime,
		})
		if err != nil {
			log.Printf("Failed to serialize relayed delta message: %v", err)
			return
		}
		s.sessions.Broadcast(event.ProjectID, payload, event.UserID)

	default:
		log.Printf("Ignoring relay event of unknown kind %q", event.Kind)
	}
}

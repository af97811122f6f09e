package metrics

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WebSocket Metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "procache_sessions_active",
		Help: "The current number of active push sessions.",
	})
	TotalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procache_sessions_total",
		Help: "The total number of push sessions accepted.",
	})
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procache_messages_sent_total",
		Help: "The total number of messages written to push sessions.",
	})
	MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procache_messages_dropped_total",
		Help: "The total number of broadcast messages dropped because a session's outbound channel was full or closed.",
	})

	// Invalidation Metrics
	InvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procache_invalidations_total",
		Help: "The total number of accepted invalidation requests.",
	})
	DriftResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procache_drift_resets_total",
		Help: "The total number of clock-drift resets triggered.",
	})
	RoutePersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procache_route_persist_failures_total",
		Help: "The total number of failed route-catalog write-throughs.",
	})

	// Relay Broker Metrics
	BrokerMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procache_broker_messages_published_total",
		Help: "The total number of invalidation events published to the relay broker.",
	}, []string{"broker_type"})
	BrokerMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procache_broker_messages_received_total",
		Help: "The total number of invalidation events received from the relay broker.",
	}, []string{"broker_type"})

	// Admission Metrics
	AuthSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procache_auth_success_total",
		Help: "The total number of successful session admissions.",
	})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procache_auth_failures_total",
		Help: "The total number of rejected session admissions.",
	}, []string{"reason"})
)

// StartServer starts the HTTP server for Prometheus metrics.
func StartServer(port int, path string) {
	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting metrics server on %s%s", addr, path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Fatalf("Failed to start metrics server: %v", err)
		}
	}()
}

package routes

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Santoshkurmi/pro-cache-testing/metrics"
)

const (
	persistRetryDelay = 200 * time.Millisecond
	persistMaxRetries = 3
)

// Store persists the known-routes catalog. The catalog is best-effort
// durability: a failed save is logged and counted but never surfaced to the
// invalidation path that triggered it.
type Store interface {
	// Load reads the catalog. A missing or unreadable catalog returns an
	// empty slice and no error; startup must not fail on it.
	Load(ctx context.Context) ([]string, error)
	// Save writes the full catalog, replacing any previous contents.
	Save(ctx context.Context, routes []string) error
}

// SaveAsync writes the catalog in the background with bounded retries.
// Failures are swallowed: the live protocol is prioritized over durability
// of the catalog.
func SaveAsync(store Store, routes []string) {
	go func() {
		operation := func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return store.Save(ctx, routes)
		}

		strategy := backoff.WithMaxRetries(
			backoff.NewConstantBackOff(persistRetryDelay),
			persistMaxRetries,
		)

		if err := backoff.Retry(operation, strategy); err != nil {
			metrics.RoutePersistFailures.Inc()
			log.Printf("Failed to persist route catalog: %v", err)
		}
	}()
}

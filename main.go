package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/Santoshkurmi/pro-cache-testing/api"
	"github.com/Santoshkurmi/pro-cache-testing/broker"
	"github.com/Santoshkurmi/pro-cache-testing/config"
	"github.com/Santoshkurmi/pro-cache-testing/metrics"
	"github.com/Santoshkurmi/pro-cache-testing/registry"
	"github.com/Santoshkurmi/pro-cache-testing/routes"
	"github.com/Santoshkurmi/pro-cache-testing/server"
	"github.com/Santoshkurmi/pro-cache-testing/state"
	"github.com/Santoshkurmi/pro-cache-testing/token"
	"github.com/Santoshkurmi/pro-cache-testing/websocket"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	if err := config.Initialize(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	cfg := config.Get()

	// Unique ID for this coordinator instance; relay events are tagged
	// with it so an instance can ignore its own.
	originID := uuid.New().String()
	log.Printf("Starting coordinator instance with ID: %s", originID)

	// Redis is only needed when the routes store or the relay broker use it.
	var redisClient *redis.Client
	needsRedis := strings.ToLower(cfg.Routes.StoreType) == "redis" || strings.ToLower(cfg.Broker.Type) == "redis"
	if needsRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
	}

	// Routes catalog store
	var routeStore routes.Store
	switch strings.ToLower(cfg.Routes.StoreType) {
	case "file":
		routeStore = routes.NewFileStore(cfg.Routes.FilePath)
	case "redis":
		routeStore = routes.NewRedisStore(redisClient, cfg.Routes.RedisKey)
	default:
		log.Fatalf("Invalid routes store type: %s", cfg.Routes.StoreType)
	}

	// Shared state: warm-restart the known-routes catalog.
	store := state.NewStore()
	if persisted, err := routeStore.Load(ctx); err != nil {
		log.Printf("Failed to load route catalog: %v", err)
	} else if len(persisted) > 0 {
		store.SeedRoutes(persisted)
		log.Printf("Loaded %d routes from catalog", len(persisted))
	}

	guard := state.NewGuard(nil)
	tokens := token.NewRegistry()
	sessions := registry.NewRegistry()

	// --- Dynamic Relay Broker Initialization ---
	var relay broker.MessageBroker
	switch strings.ToLower(cfg.Broker.Type) {
	case "none":
		log.Println("Cross-instance relay is DISABLED.")
	case "redis":
		relay = broker.NewRedisBroker(redisClient)
		log.Println("Cross-instance relay: redis")
	case "kafka":
		var err error
		relay, err = broker.NewKafkaBroker(cfg.Broker.Kafka.Brokers, cfg.Broker.Kafka.GroupID)
		if err != nil {
			log.Fatalf("Failed to create Kafka broker: %v", err)
		}
		log.Println("Cross-instance relay: kafka")
	default:
		log.Fatalf("Invalid broker type specified: %s", cfg.Broker.Type)
	}
	if relay != nil {
		defer relay.Close()
	}
	// --- End of Broker Initialization ---

	svc := api.NewService(originID, tokens, store, guard, sessions, routeStore, relay, cfg.Broker.Channel)

	if relay != nil {
		go func() {
			if err := svc.RunRelay(ctx); err != nil {
				log.Printf("Relay loop stopped: %v", err)
			}
		}()
	}

	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// Public WebSocket endpoint
	wsHandler := websocket.NewHandler(ctx, tokens, store, sessions, &cfg.WebSocket)
	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	publicSrv := server.NewServer(cfg.Server.PublicAddr, wsMux, cfg.Server.ReadTimeout, 0)

	// Internal API, loopback-bound by default
	internalSrv := server.NewServer(cfg.Server.InternalAddr, api.NewHandler(svc).Routes(),
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	go publicSrv.Start()
	go internalSrv.Start()
	log.Printf("Public WS listening on %s", cfg.Server.PublicAddr)
	log.Printf("Internal API listening on %s", cfg.Server.InternalAddr)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received")

	// Graceful shutdown: cancelling ctx closes every live session with a
	// going-away frame via the handler's write pumps.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := internalSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Internal server shutdown: %v", err)
	}
	if err := publicSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Public server shutdown: %v", err)
	}

	// One final catalog save so routes discovered since the last
	// write-through survive the restart.
	if err := routeStore.Save(shutdownCtx, store.KnownRoutes()); err != nil {
		log.Printf("Failed to persist route catalog on shutdown: %v", err)
	}

	log.Println("Coordinator stopped")
}

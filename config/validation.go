package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func (c *AppConfig) Validate() error {
	if c.Server.PublicAddr == "" {
		return errors.New("server publicAddr must be specified")
	}
	if c.Server.InternalAddr == "" {
		return errors.New("server internalAddr must be specified")
	}

	if c.WebSocket.HandshakeTimeout < 1 {
		return errors.New("handshake timeout must be at least 1 second")
	}
	if c.WebSocket.WriteTimeout < 1 {
		return errors.New("websocket write timeout must be at least 1 second")
	}
	if c.WebSocket.OutboundBuffer < 1 {
		return errors.New("outbound buffer must be positive")
	}

	// Validate routes store configuration
	switch strings.ToLower(c.Routes.StoreType) {
	case "file":
		if c.Routes.FilePath == "" {
			return errors.New("routes filePath must be specified for file store")
		}
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("redis address must be specified for redis routes store")
		}
		if c.Routes.RedisKey == "" {
			return errors.New("routes redisKey must be specified for redis routes store")
		}
	default:
		return fmt.Errorf("invalid routes store type: %s. Must be 'file' or 'redis'", c.Routes.StoreType)
	}

	// Validate relay broker configuration
	switch strings.ToLower(c.Broker.Type) {
	case "none":
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("redis address must be specified for redis broker")
		}
		if c.Broker.Channel == "" {
			return errors.New("broker channel must be configured for redis broker")
		}
	case "kafka":
		if len(c.Broker.Kafka.Brokers) == 0 {
			return errors.New("kafka brokers must be specified for kafka broker")
		}
		if c.Broker.Kafka.GroupID == "" {
			return errors.New("kafka groupID must be specified for kafka broker")
		}
		if c.Broker.Channel == "" {
			return errors.New("broker channel must be configured for kafka broker")
		}
	default:
		return fmt.Errorf("invalid broker type: %s. Must be 'none', 'redis' or 'kafka'", c.Broker.Type)
	}

	return nil
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.publicAddr", "PROCACHE_PUBLIC_ADDR")
	viper.BindEnv("server.internalAddr", "PROCACHE_INTERNAL_ADDR")

	// WebSocket
	viper.BindEnv("websocket.handshakeTimeout", "PROCACHE_HANDSHAKE_TIMEOUT")
	viper.BindEnv("websocket.writeTimeout", "PROCACHE_WRITE_TIMEOUT")
	viper.BindEnv("websocket.pingInterval", "PROCACHE_PING_INTERVAL")
	viper.BindEnv("websocket.outboundBuffer", "PROCACHE_OUTBOUND_BUFFER")

	// Routes catalog
	viper.BindEnv("routes.storeType", "PROCACHE_ROUTES_STORE")
	viper.BindEnv("routes.filePath", "PROCACHE_ROUTES_FILE")
	viper.BindEnv("routes.redisKey", "PROCACHE_ROUTES_REDIS_KEY")

	// Redis
	viper.BindEnv("redis.address", "PROCACHE_REDIS_ADDRESS")
	viper.BindEnv("redis.password", "PROCACHE_REDIS_PASSWORD")

	// Broker
	viper.BindEnv("broker.type", "PROCACHE_BROKER_TYPE")
	viper.BindEnv("broker.channel", "PROCACHE_BROKER_CHANNEL")
	viper.BindEnv("broker.kafka.brokers", "PROCACHE_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.groupID", "PROCACHE_KAFKA_GROUPID")
}

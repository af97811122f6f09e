package config

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Routes    RoutesConfig
	Redis     RedisConfig
	Broker    BrokerConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	PublicAddr   string // public WebSocket listener
	InternalAddr string // internal API listener, loopback by default
	ReadTimeout  int    // Seconds
	WriteTimeout int    // Seconds
}

type WebSocketConfig struct {
	HandshakeTimeout int // Seconds
	WriteTimeout     int // Seconds
	PingInterval     int // Seconds
	MessageSizeLimit int64
	OutboundBuffer   int // per-session outbound channel capacity
}

type RoutesConfig struct {
	StoreType string // "file" or "redis"
	FilePath  string
	RedisKey  string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

type BrokerConfig struct {
	Type    string // "none", "redis" or "kafka"
	Channel string // pub/sub channel or kafka topic
	Kafka   KafkaConfig
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

var (
	instance *AppConfig
	once     sync.Once
)

func Initialize(env string) error {
	var initErr error
	once.Do(func() {
		viper.SetConfigName(fmt.Sprintf("config.%s", env))
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")

		viper.AutomaticEnv()
		viper.SetEnvPrefix("PROCACHE")

		setDefaults()
		bindEnvVars()

		if err := viper.ReadInConfig(); err != nil {
			// A missing config file is fine; defaults and env vars cover it.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				initErr = fmt.Errorf("config file error: %w", err)
				return
			}
		}

		if err := viper.Unmarshal(&instance); err != nil {
			initErr = fmt.Errorf("config unmarshal error: %w", err)
			return
		}

		if err := instance.Validate(); err != nil {
			initErr = fmt.Errorf("config validation failed: %w", err)
			return
		}
	})
	return initErr
}

func Get() *AppConfig {
	return instance
}

package config

import "github.com/spf13/viper"

func setDefaults() {
	// Server
	viper.SetDefault("server.publicAddr", "0.0.0.0:8080")
	viper.SetDefault("server.internalAddr", "127.0.0.1:8081")
	viper.SetDefault("server.readTimeout", 15)
	viper.SetDefault("server.writeTimeout", 15)

	// WebSocket
	viper.SetDefault("websocket.handshakeTimeout", 10)
	viper.SetDefault("websocket.writeTimeout", 10)
	viper.SetDefault("websocket.pingInterval", 25)
	viper.SetDefault("websocket.messageSizeLimit", 2048)
	viper.SetDefault("websocket.outboundBuffer", 256)

	// Routes catalog persistence
	viper.SetDefault("routes.storeType", "file")
	viper.SetDefault("routes.filePath", "routes.json")
	viper.SetDefault("routes.redisKey", "procache:routes")

	// Redis
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolSize", 100)

	// Relay broker
	viper.SetDefault("broker.type", "none")
	viper.SetDefault("broker.channel", "procache:invalidations")
	viper.SetDefault("broker.kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("broker.kafka.groupID", "procache")

	// Metrics
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.path", "/metrics")
}

package config

import "github.com/spf13/viper"

// RedisConfiguration holds the connection settings for the idempotency store
type RedisConfiguration struct {
	URL string // empty selects the in-memory store
}

// RedisConfig returns the Redis configuration
func RedisConfig() *RedisConfiguration {
	return &RedisConfiguration{
		URL: viper.GetString("REDIS_URL"),
	}
}

package config

import (
	"time"

	"github.com/spf13/viper"
)

// ServerConfiguration type defines the server configurations
type ServerConfiguration struct {
	Host                string
	Port                string `validate:"required"`
	Environment         string
	LogLevel            string
	SentryDSN           string
	RateLimitPerSecond  uint
	HealthProbeInterval time.Duration
}

// ServerConfig sets the server configuration
func ServerConfig() *ServerConfiguration {
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", "8000")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("RATE_LIMIT_PER_SECOND", 5)
	viper.SetDefault("HEALTH_PROBE_INTERVAL", 5*time.Minute)

	return &ServerConfiguration{
		Host:                viper.GetString("SERVER_HOST"),
		Port:                viper.GetString("SERVER_PORT"),
		Environment:         viper.GetString("ENVIRONMENT"),
		LogLevel:            viper.GetString("LOG_LEVEL"),
		SentryDSN:           viper.GetString("SENTRY_DSN"),
		RateLimitPerSecond:  viper.GetUint("RATE_LIMIT_PER_SECOND"),
		HealthProbeInterval: viper.GetDuration("HEALTH_PROBE_INTERVAL"),
	}
}

// Validate checks the server configuration
func (c *ServerConfiguration) Validate() error {
	return validateStruct("server", c)
}

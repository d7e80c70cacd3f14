package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/NEDA-LABS/mintrelay/config"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the process-wide Redis connection, nil when Redis is not configured
var RedisClient *redis.Client

// InitializeRedis connects to Redis when REDIS_URL is set
func InitializeRedis(ctx context.Context) error {
	conf := config.RedisConfig()
	if conf.URL == "" {
		logger.Infof("REDIS_URL not set, idempotency records are kept in memory")
		return nil
	}

	opts, err := redis.ParseURL(conf.URL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	RedisClient = client
	logger.Infof("Connected to Redis at %s", opts.Addr)
	return nil
}

// CloseRedis releases the Redis connection
func CloseRedis() error {
	if RedisClient == nil {
		return nil
	}
	err := RedisClient.Close()
	RedisClient = nil
	return err
}

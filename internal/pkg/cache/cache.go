package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nomadaapp/nomada/internal/pkg/env"
	"github.com/nomadaapp/nomada/internal/pkg/logging"
)

var client *redis.Client

// SetupCache initializes the connection to the Redis server backing the
// visit counters. An unreachable server is only a warning: the visit
// accounting falls back to the local store until Redis comes back.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")
	log := logging.Component("cache")

	client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     env.GetEnv("CACHE_PASSWORD", ""),
		DB:           env.GetEnvInt("CACHE_DB", 0),
		DialTimeout:  env.GetEnvDuration("CACHE_DIAL_TIMEOUT", 2*time.Second),
		ReadTimeout:  env.GetEnvDuration("CACHE_READ_TIMEOUT", 2*time.Second),
		WriteTimeout: env.GetEnvDuration("CACHE_WRITE_TIMEOUT", 2*time.Second),
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warn().Err(err).Str("addr", client.Options().Addr).Msg("could not connect to redis, visit counters will use the fallback store")
	} else {
		log.Info().Str("addr", client.Options().Addr).Str("reply", pong).Msg("connected to redis")
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Close releases the shared client.
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}

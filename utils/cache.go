// File: utils/cache.go
package utils

import (
	"context"
	"fmt"
	"time"

	"partnerdesk/config"

	"github.com/go-redis/redis/v8"
)

// SessionCacheClient holds the partner login session written by the onboarding flow.
var SessionCacheClient *redis.Client

// InitSessionCache initializes the Redis client for partner sessions (using REDIS_SESSION_DB).
func InitSessionCache() error {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisSessionDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis (Session Cache): %w", err)
	}
	SessionCacheClient = client
	return nil
}

// GetSessionCacheClient returns the session client, or nil when Redis is unreachable.
func GetSessionCacheClient() *redis.Client {
	if SessionCacheClient == nil {
		if err := InitSessionCache(); err != nil {
			GetLogger().Sugar().Warnf("session cache unavailable: %v", err)
			return nil
		}
	}
	return SessionCacheClient
}

package utils

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// HealthStatus represents current status of the session store and push channel.
type HealthStatus struct {
	Redis     bool      `json:"redis"`
	Push      string    `json:"push"`
	CheckedAt time.Time `json:"checkedAt"`
}

var (
	currentHealth HealthStatus
	mu            sync.RWMutex
)

// GetHealthStatus returns latest stored health snapshot.
func GetHealthStatus() HealthStatus {
	mu.RLock()
	defer mu.RUnlock()
	return currentHealth
}

// CheckHealth probes once and stores the result. A nil client reports Redis
// as down; push reports the connection state.
func CheckHealth(ctx context.Context, client *redis.Client, push func() string) HealthStatus {
	status := HealthStatus{CheckedAt: time.Now()}
	if client != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		status.Redis = client.Ping(pingCtx).Err() == nil
		cancel()
	}
	if push != nil {
		status.Push = push()
	}

	mu.Lock()
	currentHealth = status
	mu.Unlock()
	return status
}

// StartHealthMonitor performs periodic health checks until ctx is done.
func StartHealthMonitor(ctx context.Context, client *redis.Client, push func() string, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		CheckHealth(ctx, client, push)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				CheckHealth(ctx, client, push)
			}
		}
	}()
}

package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-escrow/internal/logger"
)

// EventCache is a read-through cache for decoded event summaries. A nil
// *EventCache is a no-op, so callers never branch on whether Redis is
// configured.
type EventCache struct {
	Client *redis.Client
	TTL    time.Duration
}

// Connect creates a Redis client and verifies the connection.
func Connect(addr string, ttl time.Duration, log *logger.Logger) (*EventCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		if log != nil {
			log.Error("CACHE", "Failed to connect to Redis at "+addr)
		}
		return nil, err
	}
	if log != nil {
		log.Info("CACHE", "Connected to Redis at "+addr)
	}
	return &EventCache{Client: client, TTL: ttl}, nil
}

func (c *EventCache) key(address string) string {
	return "event:" + address
}

// Get unmarshals a cached value into dest, reporting whether it was present.
func (c *EventCache) Get(ctx context.Context, address string, dest any) bool {
	if c == nil {
		return false
	}
	val, err := c.Client.Get(ctx, c.key(address)).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), dest) == nil
}

func (c *EventCache) Set(ctx context.Context, address string, value any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.Client.Set(ctx, c.key(address), data, c.TTL).Err()
}

// Invalidate drops the cached entry after a balance-changing operation.
func (c *EventCache) Invalidate(ctx context.Context, address string) {
	if c == nil {
		return
	}
	_ = c.Client.Del(ctx, c.key(address)).Err()
}

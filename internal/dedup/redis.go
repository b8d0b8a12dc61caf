package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "askhub:event:"

// Redis deduplicates across replicas with SET NX and a TTL, so a key exists
// exactly once per retention window regardless of which instance saw it
// first.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	set, err := r.client.SetNX(ctx, keyPrefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	// SetNX returns false when the key already existed.
	return !set, nil
}

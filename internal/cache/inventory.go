package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	AdminKeyPrefix = "user:%s:admin"
)

const (
	AdminTTL = 5 * time.Minute
)

// AdminKey caches a user's admin capability.
func AdminKey(userID string) string {
	return fmt.Sprintf(AdminKeyPrefix, userID)
}

// Aside reads key into dest, or runs load and stores dest for ttl on a miss.
// Without a Redis client it simply runs load.
func Aside(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func() error) error {
	if client == nil {
		return load()
	}

	raw, err := client.Get(ctx, key).Bytes()
	if err == nil {
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			return nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return load()
	}

	if err := load(); err != nil {
		return err
	}

	if encoded, err := json.Marshal(dest); err == nil {
		client.Set(ctx, key, encoded, ttl)
	}
	return nil
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateAdmin(ctx context.Context, userID string) {
	Invalidate(ctx, AdminKey(userID))
}

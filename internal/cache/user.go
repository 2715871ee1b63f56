// Package cache keeps a Redis copy of user records. Users are never updated
// or deleted, so entries only need a TTL, never invalidation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ctchen222/popug-auth/internal/api/models"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("cache.user")

const userKeyPrefix = "user:"

// UserCache is a Redis-backed read-through cache of user records.
type UserCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewUserCache creates a UserCache whose entries expire after ttl.
func NewUserCache(client *redis.Client, ttl time.Duration) *UserCache {
	return &UserCache{client: client, ttl: ttl}
}

func userKey(username string) string {
	return userKeyPrefix + username
}

// Get returns the cached user, or nil on a miss. A corrupted entry is
// treated as a miss.
func (c *UserCache) Get(ctx context.Context, username string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "UserCache.Get")
	defer span.End()

	data, err := c.client.Get(ctx, userKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user from redis: %w", err)
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		slog.WarnContext(ctx, "dropping corrupted user cache entry", "user.name", username, "error", err)
		return nil, nil
	}
	return &user, nil
}

// Set stores user under its username.
func (c *UserCache) Set(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "UserCache.Set")
	defer span.End()

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := c.client.Set(ctx, userKey(user.Username), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set user in redis: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *UserCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

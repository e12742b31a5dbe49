// Package unread caches per-user unread notification counts in Redis. The
// SQL store stays authoritative: every cache failure is logged and treated
// as a miss, and Reset drops the key so the next read repopulates it.
package unread

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"auditflow/internal/platform/redis"
)

const keyTTL = 24 * time.Hour

// adjustScript only touches existing keys: an INCRBY on a missing key would
// seed it at the delta and diverge from SQL.
var adjustScript = goredis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 1 then
		return redis.call("INCRBY", KEYS[1], ARGV[1])
	end
	return false
`)

// Cache wraps the Redis unread counters. A nil Cache is valid and turns
// every operation into a no-op miss, for deployments without Redis.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

func New(client *redis.Client, logger *slog.Logger) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, logger: logger}
}

func key(userID uuid.UUID) string {
	return "notifications:unread:" + userID.String()
}

// Get returns the cached count, or ok=false on miss or error.
func (c *Cache) Get(ctx context.Context, userID uuid.UUID) (int64, bool) {
	if c == nil {
		return 0, false
	}
	count, err := c.client.Get(ctx, key(userID)).Int64()
	if err != nil {
		if err != goredis.Nil {
			c.logger.Warn("unread cache get failed", "user_id", userID, "error", err)
		}
		return 0, false
	}
	return count, true
}

// Set stores the authoritative count.
func (c *Cache) Set(ctx context.Context, userID uuid.UUID, count int64) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, key(userID), count, keyTTL).Err(); err != nil {
		c.logger.Warn("unread cache set failed", "user_id", userID, "error", err)
	}
}

// Incr bumps the counter after a create.
func (c *Cache) Incr(ctx context.Context, userID uuid.UUID) {
	c.adjust(ctx, userID, 1)
}

// Decr lowers the counter after a single mark-read.
func (c *Cache) Decr(ctx context.Context, userID uuid.UUID) {
	c.adjust(ctx, userID, -1)
}

func (c *Cache) adjust(ctx context.Context, userID uuid.UUID, delta int64) {
	if c == nil {
		return
	}
	err := adjustScript.Run(ctx, c.client.Client, []string{key(userID)}, delta).Err()
	if err != nil && err != goredis.Nil {
		c.logger.Warn("unread cache adjust failed", "user_id", userID, "error", err)
	}
}

// Reset drops the key after bulk transitions (mark-all-read, deletes).
func (c *Cache) Reset(ctx context.Context, userID uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, key(userID)).Err(); err != nil {
		c.logger.Warn("unread cache reset failed", "user_id", userID, "error", err)
	}
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a derived table may outlive a missed
// invalidation.
const DefaultTTL = 5 * time.Minute

// Cache stores derived read models (match snapshots, standings and
// leaderboards) as JSON in Redis. The league engine never reads from it.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a cache over client. A non-positive ttl uses DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func MatchKey(matchID string) string {
	return fmt.Sprintf("match:%s", matchID)
}

func StandingsKey(leagueID, seasonID string) string {
	return fmt.Sprintf("standings:%s:%s", leagueID, seasonID)
}

func LeaderboardKey(leagueID, seasonID string) string {
	return fmt.Sprintf("leaderboard:%s:%s", leagueID, seasonID)
}

// GetJSON decodes the value at key into v. It reports false without an
// error when the key is absent.
func (c *Cache) GetJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshaling %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v at key with the cache TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate deletes keys in one pipeline.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, k)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

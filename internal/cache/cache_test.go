package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "match:m1", MatchKey("m1"))
	assert.Equal(t, "standings:premier:2026", StandingsKey("premier", "2026"))
	assert.Equal(t, "leaderboard:premier:2026", LeaderboardKey("premier", "2026"))
}

func TestNewDefaultsTTL(t *testing.T) {
	c := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), 0)
	assert.Equal(t, DefaultTTL, c.ttl)
}

func TestUnreachableRedisReturnsErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := New(client, time.Minute)
	ctx := context.Background()

	var v map[string]int
	hit, err := c.GetJSON(ctx, MatchKey("m1"), &v)
	require.Error(t, err)
	assert.False(t, hit)

	assert.Error(t, c.SetJSON(ctx, MatchKey("m1"), map[string]int{"a": 1}))
	assert.Error(t, c.Invalidate(ctx, MatchKey("m1")))
	assert.NoError(t, c.Invalidate(ctx))
}

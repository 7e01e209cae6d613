package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// Runs against a real Redis when TEST_REDIS_ADDR is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	prefix := "test:" + ulid.Make().String() + ":"
	s := NewRedisStore(rdb, prefix)
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			_ = rdb.Del(ctx, keys...).Err()
		}
	})

	_, ok, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	exp := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	require.NoError(t, s.Put(ctx, Record{UserID: 1, Token: "tok", ExpiresAt: exp}))
	r, ok, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tok", r.Token)
	require.True(t, exp.Equal(r.ExpiresAt))

	ok, err = s.IsAdmin(ctx, 9)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.AddAdmin(ctx, 9))
	require.NoError(t, s.AddAdmin(ctx, 4))
	ids, err := s.Admins(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{4, 9}, ids)
	require.NoError(t, s.RemoveAdmin(ctx, 9))
	ok, err = s.IsAdmin(ctx, 9)
	require.NoError(t, err)
	require.False(t, ok)
}

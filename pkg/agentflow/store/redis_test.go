package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/randalmurphal/agentflow/pkg/agentflow/store"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, opts ...store.RedisOption) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	s := store.NewRedisStoreFromClient(client, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_Contract(t *testing.T) {
	s, _ := newRedisStore(t)
	runStoreContract(t, s)
}

func TestRedisStore_KeyLayout(t *testing.T) {
	s, mr := newRedisStore(t, store.WithPrefix("test:"))
	require.NoError(t, s.Set(context.Background(), "sess-1", "count", []byte("2")))

	assert.True(t, mr.Exists("test:sess-1"))
	assert.Equal(t, "2", mr.HGet("test:sess-1", "count"))
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, store.WithTTL(time.Minute))
	require.NoError(t, s.Set(ctx, "sess-ttl", "k", []byte("v")))

	mr.FastForward(2 * time.Minute)

	_, err := s.Get(ctx, "sess-ttl", "k")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisStore_ServerDown(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "ns", "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

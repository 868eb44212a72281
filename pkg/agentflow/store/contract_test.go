package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/randalmurphal/agentflow/pkg/agentflow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises behavior every backend must share.
func runStoreContract(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, "ns-missing", "nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "ns1", "k", []byte(`"v"`)))
		got, err := s.Get(ctx, "ns1", "k")
		require.NoError(t, err)
		assert.Equal(t, []byte(`"v"`), got)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "ns1", "k", []byte("1")))
		require.NoError(t, s.Set(ctx, "ns1", "k", []byte("2")))
		got, err := s.Get(ctx, "ns1", "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("2"), got)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "ns-a", "shared", []byte("a")))
		require.NoError(t, s.Set(ctx, "ns-b", "shared", []byte("b")))

		a, err := s.Get(ctx, "ns-a", "shared")
		require.NoError(t, err)
		b, err := s.Get(ctx, "ns-b", "shared")
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), a)
		assert.Equal(t, []byte("b"), b)
	})

	t.Run("all", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "ns-all", "x", []byte("1")))
		require.NoError(t, s.Set(ctx, "ns-all", "y", []byte("2")))

		all, err := s.All(ctx, "ns-all")
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{"x": []byte("1"), "y": []byte("2")}, all)

		empty, err := s.All(ctx, "ns-never-written")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "ns-del", "k", []byte("1")))
		require.NoError(t, s.Delete(ctx, "ns-del", "k"))
		require.NoError(t, s.Delete(ctx, "ns-del", "never-there"))
		_, err := s.Get(ctx, "ns-del", "k")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "ns-clear", "a", []byte("1")))
		require.NoError(t, s.Set(ctx, "ns-keep", "a", []byte("1")))
		require.NoError(t, s.Clear(ctx, "ns-clear"))

		all, err := s.All(ctx, "ns-clear")
		require.NoError(t, err)
		assert.Empty(t, all)
		_, err = s.Get(ctx, "ns-keep", "a")
		assert.NoError(t, err)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Set(ctx, "ns-conc", fmt.Sprintf("k%d", i), []byte("v")))
			}(i)
		}
		wg.Wait()

		all, err := s.All(ctx, "ns-conc")
		require.NoError(t, err)
		assert.Len(t, all, 20)
	})
}

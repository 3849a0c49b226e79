package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storeredis "github.com/evalgo/memstore/internal/store/redis"
)

func newBackedCache(t *testing.T) (*TwoTier, *storeredis.Repository) {
	t.Helper()
	mr := miniredis.RunT(t)
	backing, err := storeredis.New(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { backing.Close() })

	c, err := New(backing, 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, backing
}

func TestTwoTier_SetGetDelete(t *testing.T) {
	c, _ := newBackedCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))
	c.Wait()

	value, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)

	require.NoError(t, c.Delete(ctx, "k1"))
	c.Wait()
	_, ok, err = c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTwoTier_FallsThroughToBackingTier(t *testing.T) {
	c, backing := newBackedCache(t)
	ctx := context.Background()

	// Entry written directly to the shared tier, bypassing local.
	require.NoError(t, backing.Set(ctx, "shared", []byte("from-redis"), time.Minute))

	value, ok, err := c.Get(ctx, "shared")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("from-redis"), value)

	// The hit refilled the local tier.
	c.Wait()
	local, ok := c.local.Get("shared")
	require.True(t, ok)
	assert.Equal(t, []byte("from-redis"), local)
}

func TestTwoTier_LocalOnly(t *testing.T) {
	c, err := New(nil, 0)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	c.Wait()
	value, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

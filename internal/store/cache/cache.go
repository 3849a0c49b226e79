// Package cache layers a small in-process tier over the shared Redis cache:
// reads hit local memory first and fall through to the distributed tier,
// refilling on the way back. Both tiers are best-effort: a miss is reported
// as a miss, while an error from the backing tier is returned to the caller
// unchanged.
package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/store"
)

const (
	defaultMaxBytes    = 64 << 20
	defaultNumCounters = 1e6
	bufferItems        = 64
)

// TwoTier implements store.CacheRepository over an in-process ristretto
// cache backed by a shared tier, typically the Redis repository. A nil
// backing tier leaves the cache purely local.
type TwoTier struct {
	local   *ristretto.Cache[string, []byte]
	backing store.CacheRepository
}

// New builds a TwoTier with maxBytes of local capacity (the default when
// maxBytes <= 0).
func New(backing store.CacheRepository, maxBytes int64) (*TwoTier, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	local, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: defaultNumCounters,
		MaxCost:     maxBytes,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, apperr.Database("failed to build local cache", err)
	}
	return &TwoTier{local: local, backing: backing}, nil
}

// Set writes through both tiers.
func (c *TwoTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.local.SetWithTTL(key, value, int64(len(value)), ttl)
	if c.backing == nil {
		return nil
	}
	return c.backing.Set(ctx, key, value, ttl)
}

// Get reads the local tier first, falling through to the backing tier and
// refilling local on a hit. The refilled local entry gets a fixed one-minute
// TTL; the backing tier's remaining TTL is not carried over.
func (c *TwoTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if value, ok := c.local.Get(key); ok {
		return value, true, nil
	}
	if c.backing == nil {
		return nil, false, nil
	}
	value, ok, err := c.backing.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	c.local.SetWithTTL(key, value, int64(len(value)), time.Minute)
	return value, true, nil
}

// Delete removes the key from both tiers.
func (c *TwoTier) Delete(ctx context.Context, key string) error {
	c.local.Del(key)
	if c.backing == nil {
		return nil
	}
	return c.backing.Delete(ctx, key)
}

// Close releases the local tier's resources.
func (c *TwoTier) Close() error {
	c.local.Close()
	return nil
}

// Wait blocks until pending local writes are visible, for tests that read
// immediately after writing.
func (c *TwoTier) Wait() {
	c.local.Wait()
}

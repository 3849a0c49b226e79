// Package redis implements store.LockRepository and store.CacheRepository on
// top of Redis: distributed locks for the integrator's per-tenant passes
// and a shared cache tier in front of Postgres, each under its own key
// prefix ("lock:", "cache:").
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/store"
)

// Repository implements store.LockRepository and store.CacheRepository.
type Repository struct {
	client *goredis.Client
}

// New opens a client against url and verifies connectivity with a ping.
func New(ctx context.Context, url string) (*Repository, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, apperr.Database("failed to parse redis url", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, apperr.Database("failed to connect to redis", err)
	}
	return &Repository{client: client}, nil
}

func (r *Repository) Close() error {
	return r.client.Close()
}

// lockHandle releases a single acquired lock by deleting its key, matching
// the value it set so an expired-then-reacquired lock held by someone else
// is never accidentally released (compare-and-delete via a Lua script).
type lockHandle struct {
	client *goredis.Client
	key    string
	token  string
}

var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

func (h *lockHandle) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Err(); err != nil {
		return apperr.Database("failed to release lock", err)
	}
	return nil
}

// Acquire takes a per-key mutual-exclusion lock via SetNX, enforcing at
// most one concurrent holder until Release or TTL expiry.
func (r *Repository) Acquire(ctx context.Context, key string, ttl time.Duration) (store.Lock, bool, error) {
	lockKey := "lock:" + key
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := r.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, apperr.Database("failed to acquire lock", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &lockHandle{client: r.client, key: lockKey, token: token}, true, nil
}

func (r *Repository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, "cache:"+key, value, ttl).Err(); err != nil {
		return apperr.Database("failed to set cache entry", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, "cache:"+key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Database("failed to get cache entry", err)
	}
	return data, true, nil
}

func (r *Repository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, "cache:"+key).Err(); err != nil {
		return apperr.Database("failed to delete cache entry", err)
	}
	return nil
}

// Client exposes the underlying client for the rate limiter's sliding-window
// sorted sets, which need ZADD/ZREMRANGEBYSCORE/ZCOUNT beyond this narrow
// cache/lock interface.
func (r *Repository) Client() *goredis.Client {
	return r.client
}

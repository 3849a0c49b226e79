package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// redisStore implements windowStore over a Redis sorted set per client,
// scores being request timestamps in microseconds. The whole
// prune/check/append step runs inside one Lua script so the limit holds
// across every process sharing the Redis instance.
type redisStore struct {
	cfg    Config
	client *goredis.Client
}

// NewRedis builds a limiter whose window state lives in Redis.
func NewRedis(cfg Config, client *goredis.Client) *Limiter {
	return newLimiter(cfg, &redisStore{cfg: cfg, client: client})
}

const microsPerSecond = int64(time.Second / time.Microsecond)

// takeScript prunes entries past the day window, checks minute -> hour ->
// day in order, and appends the new timestamp only when every scale is
// under its ceiling. Refusals return the index of the limiting scale and
// the oldest score still inside that window.
var takeScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local minute = tonumber(ARGV[2])
local hour = tonumber(ARGV[3])
local day = tonumber(ARGV[4])
local limits = {tonumber(ARGV[5]), tonumber(ARGV[6]), tonumber(ARGV[7])}
local windows = {minute, hour, day}
local member = ARGV[8]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - day)

for i = 1, 3 do
	local count = redis.call("ZCOUNT", key, now - windows[i], "+inf")
	if count >= limits[i] then
		local oldest = redis.call("ZRANGEBYSCORE", key, now - windows[i], "+inf", "LIMIT", 0, 1, "WITHSCORES")
		return {0, i, oldest[2]}
	end
end

redis.call("ZADD", key, now, member)
redis.call("PEXPIRE", key, math.ceil(day / 1000) + 1000)

local remaining = -1
local resetAt = now
for i = 1, 3 do
	local left = limits[i] - redis.call("ZCOUNT", key, now - windows[i], "+inf")
	if remaining < 0 or left < remaining then
		remaining = left
		local oldest = redis.call("ZRANGEBYSCORE", key, now - windows[i], "+inf", "LIMIT", 0, 1, "WITHSCORES")
		resetAt = tonumber(oldest[2]) + windows[i]
	end
end
return {1, remaining, string.format("%.0f", resetAt)}
`)

func (s *redisStore) key(clientID string) string {
	return "ratelimit:" + clientID
}

func (s *redisStore) take(ctx context.Context, clientID string, now time.Time) (takeResult, error) {
	nowMicros := now.UnixMicro()
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())
	raw, err := takeScript.Run(ctx, s.client, []string{s.key(clientID)},
		nowMicros,
		int64(time.Minute/time.Microsecond),
		int64(time.Hour/time.Microsecond),
		int64(24*time.Hour/time.Microsecond),
		s.cfg.PerMinute, s.cfg.PerHour, s.cfg.PerDay,
		member,
	).Slice()
	if err != nil {
		return takeResult{}, storeFailure(err)
	}
	if len(raw) != 3 {
		return takeResult{}, storeFailure(fmt.Errorf("unexpected script reply of length %d", len(raw)))
	}

	allowed, _ := raw[0].(int64)
	if allowed == 0 {
		scaleIdx, _ := raw[1].(int64)
		oldestMicros, err := scriptNumber(raw[2])
		if err != nil {
			return takeResult{}, storeFailure(err)
		}
		return takeResult{
			allowed: false,
			window:  [...]string{WindowMinute, WindowHour, WindowDay}[scaleIdx-1],
			oldest:  time.UnixMicro(oldestMicros),
		}, nil
	}

	remaining, _ := raw[1].(int64)
	resetMicros, err := scriptNumber(raw[2])
	if err != nil {
		return takeResult{}, storeFailure(err)
	}
	return takeResult{
		allowed:   true,
		remaining: int(remaining),
		resetAt:   time.UnixMicro(resetMicros),
	}, nil
}

func (s *redisStore) record(ctx context.Context, clientID string, now time.Time) error {
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.key(clientID), goredis.Z{Score: float64(now.UnixMicro()), Member: member})
	pipe.ZRemRangeByScore(ctx, s.key(clientID), "-inf", fmt.Sprintf("%d", now.Add(-24*time.Hour).UnixMicro()))
	pipe.Expire(ctx, s.key(clientID), 25*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeFailure(err)
	}
	return nil
}

func (s *redisStore) count(ctx context.Context, clientID string, now time.Time) (int, int, int, error) {
	key := s.key(clientID)
	nowMicros := now.UnixMicro()
	pipe := s.client.Pipeline()
	minute := pipe.ZCount(ctx, key, fmt.Sprintf("(%d", nowMicros-int64(time.Minute/time.Microsecond)), "+inf")
	hour := pipe.ZCount(ctx, key, fmt.Sprintf("(%d", nowMicros-int64(time.Hour/time.Microsecond)), "+inf")
	day := pipe.ZCount(ctx, key, fmt.Sprintf("(%d", nowMicros-int64(24*time.Hour/time.Microsecond)), "+inf")
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return 0, 0, 0, storeFailure(err)
	}
	return int(minute.Val()), int(hour.Val()), int(day.Val()), nil
}

// scriptNumber reads a Lua script reply element that may arrive as an
// integer or as a string-encoded score.
func scriptNumber(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		var parsed int64
		if _, err := fmt.Sscanf(n, "%d", &parsed); err != nil {
			return 0, fmt.Errorf("non-numeric script reply %q", n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unexpected script reply type %T", v)
	}
}

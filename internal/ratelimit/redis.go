package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// The clock is passed in from Go so every instance agrees on window edges
// with its own notion of now, and so tests can drive it.
var allowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[4])
local raw = redis.call('HGET', KEYS[1], 'resetAt')
if (not raw) or now >= tonumber(raw) then
	redis.call('HSET', KEYS[1], 'count', 1, 'resetAt', ARGV[2])
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return 1
end
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
if count >= max then
	return 0
end
redis.call('HINCRBY', KEYS[1], 'count', 1)
return 1
`)

var debounceScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local last = redis.call('HGET', KEYS[1], 'last')
local exp = redis.call('HGET', KEYS[1], 'expiresAt')
if last and exp and now < tonumber(exp) and now - tonumber(last) < tonumber(ARGV[2]) then
	return 1
end
redis.call('HSET', KEYS[1], 'last', ARGV[1], 'expiresAt', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 0
`)

// Deletes the record when its deadline field is missing or has passed.
var sweepScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if (not v) or tonumber(v) <= tonumber(ARGV[2]) then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Redis is a Backend shared by every instance. Each check is a single Lua
// script, so concurrent callers on one key are serialized by Redis.
type Redis struct {
	client *redis.Client
	now    func() time.Time
	ttl    time.Duration
}

var _ Backend = (*Redis)(nil)

// NewRedis returns a limiter storing its records in client.
func NewRedis(client *redis.Client, now func() time.Time, debounceTTL time.Duration) *Redis {
	if now == nil {
		now = time.Now
	}
	if debounceTTL <= 0 {
		debounceTTL = DefaultDebounceTTL
	}
	return &Redis{client: client, now: now, ttl: debounceTTL}
}

func (r *Redis) Allow(ctx context.Context, actorID, action string, max int, window time.Duration) (bool, error) {
	now := r.now().UnixMilli()
	res, err := allowScript.Run(ctx, r.client, []string{rateKey(actorID, action)},
		now, now+window.Milliseconds(), window.Milliseconds(), max).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit %s/%s: %w", actorID, action, err)
	}
	return res == 1, nil
}

func (r *Redis) ShouldDebounce(ctx context.Context, actorID, playerID, field string, minInterval time.Duration) (bool, error) {
	now := r.now().UnixMilli()
	res, err := debounceScript.Run(ctx, r.client, []string{debounceKey(actorID, playerID, field)},
		now, minInterval.Milliseconds(), r.ttl.Milliseconds(), now+r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("debounce %s/%s/%s: %w", actorID, playerID, field, err)
	}
	return res == 1, nil
}

// Sweep removes up to limit expired records. Redis expires them on its own;
// this catches records whose TTL was lost or never set.
func (r *Redis) Sweep(ctx context.Context, limit int) (int, error) {
	now := strconv.FormatInt(r.now().UnixMilli(), 10)
	deleted := 0
	for _, pattern := range []struct{ match, field string }{
		{"ratelimit:*", "resetAt"},
		{"debounce:*", "expiresAt"},
	} {
		var cursor uint64
		for {
			keys, next, err := r.client.Scan(ctx, cursor, pattern.match, 100).Result()
			if err != nil {
				return deleted, fmt.Errorf("scan %s: %w", pattern.match, err)
			}
			for _, k := range keys {
				if deleted >= limit {
					return deleted, nil
				}
				n, err := sweepScript.Run(ctx, r.client, []string{k}, pattern.field, now).Int()
				if err != nil {
					return deleted, fmt.Errorf("sweep %s: %w", k, err)
				}
				deleted += n
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	return deleted, nil
}

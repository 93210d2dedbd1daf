package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The window starts at the first attempt for a key and is not extended by
// later ones.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

type Redis struct {
	rdb  redis.Scripter
	opts Options
}

func NewRedis(rdb redis.Scripter, opts Options) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "rl"
	}
	return &Redis{rdb: rdb, opts: opts}
}

func (r *Redis) Allow(ctx context.Context, key string) (Result, error) {
	vals, err := fixedWindowScript.Run(ctx, r.rdb,
		[]string{r.opts.Prefix + ":" + key},
		r.opts.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit script: unexpected result %v", vals)
	}

	count, ttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	res := Result{Limit: r.opts.Attempts, Remaining: max(r.opts.Attempts-count, 0)}
	if count <= r.opts.Attempts {
		res.Allowed = true
		return res, nil
	}
	res.RetryAfter = ttl
	return res, nil
}

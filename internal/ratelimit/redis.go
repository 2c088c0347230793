package ratelimit

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// reserveScript stores the next free slot (unix ms) under KEYS[1] and returns
// how long the caller must wait for the slot it just took.
//
// ARGV[1] now, ms
// ARGV[2] interval, ms
var reserveScript = backend.NewScript(`
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local slot = tonumber(redis.call("GET", KEYS[1]) or "0")
if slot < now then
	slot = now
end
local ttl = slot - now + interval + 1000
redis.call("SET", KEYS[1], string.format("%d", slot + interval), "PX", string.format("%d", ttl))
return slot - now
`)

// RedisPacer shares one pacing gate between every process that uses the same
// key, e.g. several proxy replicas behind one webhook. When Redis cannot be
// reached it paces through a process-local Limiter instead.
type RedisPacer struct {
	client   backend.Scripter
	key      string
	interval time.Duration
	fallback *Limiter
	logger   *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// RedisOption customizes a RedisPacer.
type RedisOption func(*RedisPacer)

// WithRedisLogger sets the logger used to report fallback pacing.
func WithRedisLogger(l *zap.Logger) RedisOption {
	return func(p *RedisPacer) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRedisClock replaces time.Now and the sleep for both Redis and fallback
// pacing. Used by tests.
func WithRedisClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) RedisOption {
	return func(p *RedisPacer) {
		if now != nil {
			p.now = now
		}
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// NewRedisPacer returns a pacer for rps requests per second stored at key.
func NewRedisPacer(client backend.Scripter, key string, rps float64, opts ...RedisOption) *RedisPacer {
	p := &RedisPacer{
		client:   client,
		key:      key,
		interval: Interval(rps),
		logger:   zap.NewNop(),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, o := range opts {
		o(p)
	}
	p.fallback = NewLimiter(rps, WithClock(p.now, p.sleep))
	return p
}

// Reserve takes the next slot and returns the delay until it without sleeping.
func (p *RedisPacer) Reserve(ctx context.Context) (time.Duration, error) {
	if p.interval <= 0 {
		return 0, nil
	}
	ms, err := reserveScript.Run(ctx, p.client, []string{p.key},
		p.now().UnixMilli(), p.interval.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("RedisPacer.Reserve: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Wait implements Pacer.
func (p *RedisPacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delay, err := p.Reserve(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.logger.Warn("redis pacer unavailable, pacing locally",
			zap.String("key", p.key),
			zap.Error(err),
		)
		return p.fallback.Wait(ctx)
	}
	if delay <= 0 {
		return nil
	}
	return p.sleep(ctx, delay)
}

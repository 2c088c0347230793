// Package ratelimit spaces outbound Bitrix24 calls so that successive
// dispatches are at least one interval apart.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultRPS matches the Bitrix24 webhook allowance of two requests per second.
const DefaultRPS = 2.0

// Pacer gates one outbound request. Wait returns when the caller may send, or
// with ctx.Err() if the context ends first.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Interval converts requests per second into the minimum dispatch spacing.
// rps <= 0 yields zero, meaning no pacing.
func Interval(rps float64) time.Duration {
	if rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rps)
}

// Limiter is an in-process Pacer. All callers share one "next slot" instant.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now and the context-aware sleep. Used by tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// NewLimiter returns a Limiter for rps requests per second.
func NewLimiter(rps float64, opts ...Option) *Limiter {
	l := &Limiter{
		interval: Interval(rps),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Interval reports the configured spacing.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Wait reserves the next free slot and sleeps until it. The reservation is
// taken under the lock; the sleep is not, so waiters queue by slot rather
// than by lock order. A cancelled waiter still consumes its slot.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.interval <= 0 {
		return nil
	}

	l.mu.Lock()
	now := l.now()
	at := l.next
	if at.Before(now) {
		at = now
	}
	l.next = at.Add(l.interval)
	l.mu.Unlock()

	delay := at.Sub(now)
	if delay <= 0 {
		return nil
	}
	return l.sleep(ctx, delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Unlimited is a Pacer that never waits.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }

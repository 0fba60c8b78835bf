// Package ratelimit gates request volume before any expensive work
// happens. The counter is a fixed window per key; this is best-effort
// throttling meant to blunt abusive bursts, not a hard distributed
// guarantee. Single-instance deployments use the in-process Memory
// store, multi-instance ones the Redis store.
package ratelimit

import (
	"context"
	"time"
)

// Store is the counter backend. Incr bumps the counter for key inside
// the current fixed window, starting a fresh window when none is active
// or the active one has expired, and returns the post-increment count
// plus the window's reset time.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetTime time.Time, err error)
}

type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

type Limiter struct {
	store Store
}

func New(store Store) *Limiter {
	return &Limiter{store: store}
}

// Check consumes one request from the window for key. Keys are
// conventionally "<endpoint-class>:<client-identifier>", e.g.
// "checkout:203.0.113.9". On a store error the request is allowed:
// dropping traffic because the counter is unreachable would be worse
// than letting a burst through.
func (l *Limiter) Check(ctx context.Context, key string, maxRequests int, window time.Duration) (Result, error) {
	count, reset, err := l.store.Incr(ctx, key, window)
	if err != nil {
		return Result{Allowed: true, Remaining: maxRequests - 1, ResetTime: time.Now().Add(window)}, err
	}
	if count > maxRequests {
		return Result{Allowed: false, Remaining: 0, ResetTime: reset}, nil
	}
	return Result{Allowed: true, Remaining: maxRequests - count, ResetTime: reset}, nil
}

package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check. RetryAfter and Reset
// are only meaningful when Allowed is false.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Reset      time.Time
}

// Limiter provides rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

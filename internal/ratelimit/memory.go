package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

// MemoryLimiter implements a fixed-window in-memory rate limiter. Windows
// are anchored to the first request that opens them, not to wall-clock
// boundaries, and reset lazily on the next check after expiry.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request fits in the key's current window.
// Increment and compare happen under the entry lock, so concurrent checks
// for one key can never admit past the limit. The global lock only covers
// the map lookup.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || window <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}

	l.mu.Lock()
	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{}
		l.counters[key] = entry
	}
	l.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.windowStart.IsZero() || !now.Before(entry.windowStart.Add(window)) {
		entry.windowStart = now
		entry.count = 0
	}
	entry.lastSeen = now

	reset := entry.windowStart.Add(window)
	if entry.count >= limit {
		retryAfter := reset.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, Reset: reset}, nil
}

// SweepIdle removes entries whose last check is at least idleFor in the
// past and returns how many were dropped.
func (l *MemoryLimiter) SweepIdle(now time.Time, idleFor time.Duration) int {
	if l == nil || idleFor <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.counters {
		entry.mu.Lock()
		idle := !entry.lastSeen.IsZero() && now.Sub(entry.lastSeen) >= idleFor
		entry.mu.Unlock()
		if idle {
			delete(l.counters, key)
			removed++
		}
	}
	return removed
}

// Len reports how many identity windows are currently tracked.
func (l *MemoryLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

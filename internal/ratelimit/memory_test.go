package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryLimiter_WindowSequence(t *testing.T) {
	limiter := NewMemoryLimiter()
	window := 60 * time.Second

	for i := 0; i < 3; i++ {
		result, errAllow := limiter.Allow(context.Background(), "u:1", 3, window, testBase.Add(time.Duration(i)*time.Second))
		if errAllow != nil {
			t.Fatalf("expected no error, got %v", errAllow)
		}
		if !result.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if result.Remaining != 2-i {
			t.Fatalf("expected remaining %d, got %d", 2-i, result.Remaining)
		}
	}

	result, _ := limiter.Allow(context.Background(), "u:1", 3, window, testBase.Add(3*time.Second))
	if result.Allowed {
		t.Fatal("expected fourth request to be throttled")
	}
	if result.RetryAfter != 57*time.Second {
		t.Fatalf("expected retry after 57s, got %v", result.RetryAfter)
	}
	if !result.Reset.Equal(testBase.Add(window)) {
		t.Fatalf("expected reset at window end, got %v", result.Reset)
	}

	// The window is anchored to the first request, so it reopens at +60s.
	result, _ = limiter.Allow(context.Background(), "u:1", 3, window, testBase.Add(window))
	if !result.Allowed {
		t.Fatal("expected request in the next window to be allowed")
	}
	if result.Remaining != 2 {
		t.Fatalf("expected fresh window remaining 2, got %d", result.Remaining)
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter()
	window := 30 * time.Second

	if result, _ := limiter.Allow(context.Background(), "u:1", 1, window, testBase); !result.Allowed {
		t.Fatal("expected first identity to be allowed")
	}
	if result, _ := limiter.Allow(context.Background(), "u:1", 1, window, testBase); result.Allowed {
		t.Fatal("expected first identity to be throttled")
	}
	if result, _ := limiter.Allow(context.Background(), "u:2", 1, window, testBase); !result.Allowed {
		t.Fatal("expected second identity to keep its own window")
	}
}

func TestMemoryLimiter_ZeroLimitAllowsAll(t *testing.T) {
	limiter := NewMemoryLimiter()
	for i := 0; i < 10; i++ {
		result, _ := limiter.Allow(context.Background(), "u:1", 0, time.Minute, testBase)
		if !result.Allowed {
			t.Fatal("expected zero limit to admit everything")
		}
	}
	if limiter.Len() != 0 {
		t.Fatalf("expected no tracked windows, got %d", limiter.Len())
	}
}

func TestMemoryLimiter_ConcurrentAdmissionIsAtomic(t *testing.T) {
	limiter := NewMemoryLimiter()
	const limit = 5
	const attempts = 50

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, errAllow := limiter.Allow(context.Background(), "u:7", limit, time.Minute, testBase)
			if errAllow != nil {
				t.Errorf("expected no error, got %v", errAllow)
				return
			}
			if result.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != limit {
		t.Fatalf("expected exactly %d admitted, got %d", limit, allowed.Load())
	}
}

func TestMemoryLimiter_SweepIdle(t *testing.T) {
	limiter := NewMemoryLimiter()
	window := 30 * time.Second

	_, _ = limiter.Allow(context.Background(), "u:old", 5, window, testBase)
	_, _ = limiter.Allow(context.Background(), "u:fresh", 5, window, testBase.Add(80*time.Second))

	removed := limiter.SweepIdle(testBase.Add(90*time.Second), 3*window)
	if removed != 1 {
		t.Fatalf("expected 1 entry swept, got %d", removed)
	}
	if limiter.Len() != 1 {
		t.Fatalf("expected 1 tracked window left, got %d", limiter.Len())
	}

	// The swept identity starts over with a fresh window.
	result, _ := limiter.Allow(context.Background(), "u:old", 5, window, testBase.Add(91*time.Second))
	if !result.Allowed || result.Remaining != 4 {
		t.Fatalf("expected fresh window after sweep, got %+v", result)
	}
}

func TestIdentityKey(t *testing.T) {
	if key := IdentityKey(42, 900); key != "u:42" {
		t.Fatalf("expected sender key, got %q", key)
	}
	if key := IdentityKey(0, 900); key != "c:900" {
		t.Fatalf("expected chat fallback key, got %q", key)
	}
	if key := IdentityKey(0, 0); key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

package ratelimit

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// idleFactor times the effective window is how long an identity may stay
// quiet before its window entry is swept.
const idleFactor = 3

// sweepInterval paces the background idle sweep.
const sweepInterval = time.Minute

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// Manager enforces per-identity admission. The effective limit and window
// come from static configuration unless the DB settings snapshot carries a
// positive override.
type Manager struct {
	provider     SettingsProvider
	nowFn        func() time.Time
	limiter      *MemoryLimiter
	staticLimit  int
	staticWindow time.Duration
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(staticLimit int, staticWindow time.Duration, provider SettingsProvider, nowFn func() time.Time) *Manager {
	if provider == nil {
		provider = LoadSettingsConfig
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Manager{
		provider:     provider,
		nowFn:        nowFn,
		limiter:      NewMemoryLimiter(),
		staticLimit:  staticLimit,
		staticWindow: staticWindow,
	}
}

// Effective returns the limit and window currently in force.
func (m *Manager) Effective() (int, time.Duration) {
	if m == nil {
		return 0, 0
	}
	limit := m.staticLimit
	window := m.staticWindow
	cfg := m.provider()
	if cfg.MaxRequests > 0 {
		limit = cfg.MaxRequests
	}
	if cfg.WindowSeconds > 0 {
		window = time.Duration(cfg.WindowSeconds) * time.Second
	}
	return limit, window
}

// Allow checks whether the identity may make another request right now.
func (m *Manager) Allow(ctx context.Context, key string) (Result, error) {
	if m == nil || key == "" {
		return Result{Allowed: true}, nil
	}
	limit, window := m.Effective()
	return m.limiter.Allow(ctx, key, limit, window, m.nowFn())
}

// SweepIdle drops windows idle longer than idleFactor times the effective
// window and returns how many were removed.
func (m *Manager) SweepIdle() int {
	if m == nil {
		return 0
	}
	_, window := m.Effective()
	if window <= 0 {
		return 0
	}
	return m.limiter.SweepIdle(m.nowFn(), time.Duration(idleFactor)*window)
}

// RunSweeper periodically sweeps idle windows until the context ends.
func (m *Manager) RunSweeper(ctx context.Context) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := m.SweepIdle(); removed > 0 {
				log.Debugf("rate limit: swept %d idle windows", removed)
			}
		}
	}
}

// TrackedWindows reports how many identity windows are held in memory.
func (m *Manager) TrackedWindows() int {
	if m == nil {
		return 0
	}
	return m.limiter.Len()
}

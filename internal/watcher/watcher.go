// Package watcher keeps the in-process settings snapshot in sync with the
// settings table, so admin edits apply without a restart.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/allmovies/ultrapro/internal/models"
	internalsettings "github.com/allmovies/ultrapro/internal/settings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Default timings for the watcher loop.
const (
	// defaultPollInterval controls how often DB snapshots are refreshed.
	defaultPollInterval = 2 * time.Second
	// defaultQueryTimeout bounds DB query duration.
	defaultQueryTimeout = 10 * time.Second
)

// Watcher polls the settings table and refreshes the process snapshot when
// rows change.
type Watcher struct {
	db           *gorm.DB
	pollInterval time.Duration

	// settings snapshot change detection
	settingsLatestAt  time.Time
	settingsLatestKey string
	hasSettingsLatest bool
	settingsCount     int64
	hasSettingsCount  bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a watcher over the given database handle.
func New(db *gorm.DB, pollInterval time.Duration) *Watcher {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Watcher{db: db, pollInterval: pollInterval}
}

// Start launches the polling goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil || w.db == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()

	log.Infof("db watcher started (poll_interval=%s)", w.pollInterval)
	return nil
}

// Stop cancels the background poll and waits for it to exit.
func (w *Watcher) Stop() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.mu.Unlock()
	w.wg.Wait()
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	w.PollSettings(ctx, true)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.PollSettings(ctx, false)
		}
	}
}

// PollSettings refreshes the settings snapshot when the table changed. Change
// detection keys on the newest (updated_at, key) pair plus the row count so
// deletions are noticed too. Force bypasses the detection.
func (w *Watcher) PollSettings(ctx context.Context, force bool) {
	if w == nil || w.db == nil {
		return
	}
	qctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	// latestRow captures the newest setting timestamp for change detection.
	type latestRow struct {
		Key       string    `gorm:"column:key"`        // Latest settings key.
		UpdatedAt time.Time `gorm:"column:updated_at"` // Latest settings update time.
	}
	var latest latestRow
	hasLatest := false
	errLatest := w.db.WithContext(qctx).
		Model(&models.Setting{}).
		Select("key", "updated_at").
		Order("updated_at DESC, key DESC").
		Limit(1).
		Take(&latest).Error
	if errLatest != nil {
		if errors.Is(errLatest, context.Canceled) {
			return
		}
		if errors.Is(errLatest, gorm.ErrRecordNotFound) {
			hasLatest = false
		} else {
			log.WithError(errLatest).Warn("db watcher: query settings latest row failed")
			return
		}
	} else {
		hasLatest = true
	}

	var count int64
	if errCount := w.db.WithContext(qctx).
		Model(&models.Setting{}).
		Count(&count).Error; errCount != nil {
		if errors.Is(errCount, context.Canceled) {
			return
		}
		log.WithError(errCount).Warn("db watcher: query settings count failed")
		return
	}

	latestKey := strings.TrimSpace(latest.Key)
	latestAt := time.Time{}
	if hasLatest {
		latestAt = latest.UpdatedAt.UTC()
	}

	if !force {
		unchangedLatest := hasLatest == w.hasSettingsLatest &&
			(!hasLatest || (latestAt.Equal(w.settingsLatestAt) && latestKey == w.settingsLatestKey))
		unchangedCount := w.hasSettingsCount && count == w.settingsCount
		if unchangedLatest && unchangedCount {
			return
		}
	}

	log.Infof("db watcher: settings changed, reloading (latest_updated_at=%s latest_key=%s count=%d)",
		latestAt.Format(time.RFC3339Nano), latestKey, count)

	var rows []models.Setting
	if errFind := w.db.WithContext(qctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		if errors.Is(errFind, context.Canceled) {
			return
		}
		log.WithError(errFind).Warn("db watcher: query settings failed")
		return
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = json.RawMessage(row.Value)

		if rowUpdatedAt := row.UpdatedAt.UTC(); rowUpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = rowUpdatedAt
		}
	}

	internalsettings.StoreDBConfig(maxUpdatedAt, values)

	w.settingsCount = count
	w.hasSettingsCount = true
	if !hasLatest || latestKey == "" {
		w.settingsLatestAt = time.Time{}
		w.settingsLatestKey = ""
		w.hasSettingsLatest = false
		return
	}
	w.settingsLatestAt = latestAt
	w.settingsLatestKey = latestKey
	w.hasSettingsLatest = true
}

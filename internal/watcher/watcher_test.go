package watcher

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/allmovies/ultrapro/internal/db"
	"github.com/allmovies/ultrapro/internal/models"
	internalsettings "github.com/allmovies/ultrapro/internal/settings"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "watcher.db"))
	if errOpen != nil {
		t.Fatalf("expected db to open, got %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("expected migrate to succeed, got %v", errMigrate)
	}
	return conn
}

func upsertSetting(t *testing.T, conn *gorm.DB, key, rawValue string) {
	t.Helper()
	row := models.Setting{Key: key, Value: []byte(rawValue)}
	errSave := conn.Where(models.Setting{Key: key}).
		Assign(models.Setting{Value: []byte(rawValue)}).
		FirstOrCreate(&row).Error
	if errSave != nil {
		t.Fatalf("expected setting upsert to succeed, got %v", errSave)
	}
}

func TestPollSettings_PopulatesSnapshot(t *testing.T) {
	internalsettings.ResetDBConfig()
	t.Cleanup(internalsettings.ResetDBConfig)

	conn := newTestDB(t)
	upsertSetting(t, conn, internalsettings.RateLimitMaxRequestsKey, `12`)
	upsertSetting(t, conn, internalsettings.SiteNameKey, `"Movie Desk"`)

	watcher := New(conn, time.Hour)
	watcher.PollSettings(context.Background(), true)

	raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitMaxRequestsKey)
	if !ok {
		t.Fatal("expected rate limit key in snapshot")
	}
	var limit int
	if errUnmarshal := json.Unmarshal(raw, &limit); errUnmarshal != nil || limit != 12 {
		t.Fatalf("expected limit 12, got %s (%v)", raw, errUnmarshal)
	}
	if _, ok = internalsettings.DBConfigValue(internalsettings.SiteNameKey); !ok {
		t.Fatal("expected site name key in snapshot")
	}
}

func TestPollSettings_SkipsWhenUnchanged(t *testing.T) {
	internalsettings.ResetDBConfig()
	t.Cleanup(internalsettings.ResetDBConfig)

	conn := newTestDB(t)
	upsertSetting(t, conn, internalsettings.CacheTTLSecondsKey, `60`)

	watcher := New(conn, time.Hour)
	watcher.PollSettings(context.Background(), true)
	firstAt := internalsettings.DBConfigUpdatedAt()

	// Clearing the snapshot distinguishes a reload from a skip.
	internalsettings.ResetDBConfig()
	watcher.PollSettings(context.Background(), false)
	if _, ok := internalsettings.DBConfigValue(internalsettings.CacheTTLSecondsKey); ok {
		t.Fatal("expected unchanged table to skip the reload")
	}

	watcher.PollSettings(context.Background(), true)
	if got := internalsettings.DBConfigUpdatedAt(); !got.Equal(firstAt) {
		t.Fatalf("expected snapshot timestamp %v after forced reload, got %v", firstAt, got)
	}
}

func TestPollSettings_DetectsNewRow(t *testing.T) {
	internalsettings.ResetDBConfig()
	t.Cleanup(internalsettings.ResetDBConfig)

	conn := newTestDB(t)
	upsertSetting(t, conn, internalsettings.CacheTTLSecondsKey, `60`)

	watcher := New(conn, time.Hour)
	watcher.PollSettings(context.Background(), true)

	upsertSetting(t, conn, internalsettings.SearchLogRetentionDaysKey, `7`)
	watcher.PollSettings(context.Background(), false)

	raw, ok := internalsettings.DBConfigValue(internalsettings.SearchLogRetentionDaysKey)
	if !ok {
		t.Fatal("expected new key after poll")
	}
	var days int
	if errUnmarshal := json.Unmarshal(raw, &days); errUnmarshal != nil || days != 7 {
		t.Fatalf("expected 7 retention days, got %s (%v)", raw, errUnmarshal)
	}
}

func TestPollSettings_DetectsDeletes(t *testing.T) {
	internalsettings.ResetDBConfig()
	t.Cleanup(internalsettings.ResetDBConfig)

	conn := newTestDB(t)
	upsertSetting(t, conn, internalsettings.CacheTTLSecondsKey, `60`)
	upsertSetting(t, conn, internalsettings.SiteNameKey, `"Movie Desk"`)

	watcher := New(conn, time.Hour)
	watcher.PollSettings(context.Background(), true)

	if errDelete := conn.Where("key = ?", internalsettings.SiteNameKey).
		Delete(&models.Setting{}).Error; errDelete != nil {
		t.Fatalf("expected delete to succeed, got %v", errDelete)
	}
	watcher.PollSettings(context.Background(), false)

	if _, ok := internalsettings.DBConfigValue(internalsettings.SiteNameKey); ok {
		t.Fatal("expected deleted key to leave the snapshot")
	}
	if _, ok := internalsettings.DBConfigValue(internalsettings.CacheTTLSecondsKey); !ok {
		t.Fatal("expected surviving key to stay in the snapshot")
	}
}

func TestWatcher_StartStop(t *testing.T) {
	internalsettings.ResetDBConfig()
	t.Cleanup(internalsettings.ResetDBConfig)

	conn := newTestDB(t)
	upsertSetting(t, conn, internalsettings.CacheTTLSecondsKey, `45`)

	watcher := New(conn, 10*time.Millisecond)
	if errStart := watcher.Start(context.Background()); errStart != nil {
		t.Fatalf("expected start to succeed, got %v", errStart)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, ok := internalsettings.DBConfigValue(internalsettings.CacheTTLSecondsKey); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected started watcher to populate the snapshot")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if errStop := watcher.Stop(); errStop != nil {
		t.Fatalf("expected stop to succeed, got %v", errStop)
	}
}

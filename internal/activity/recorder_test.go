package activity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/allmovies/ultrapro/internal/db"
	"github.com/allmovies/ultrapro/internal/models"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "activity.db"))
	if errOpen != nil {
		t.Fatalf("expected db to open, got %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("expected migrate to succeed, got %v", errMigrate)
	}
	return conn
}

func countSearchLogs(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	if errCount := conn.Model(&models.SearchLog{}).Count(&count).Error; errCount != nil {
		t.Fatalf("expected count to succeed, got %v", errCount)
	}
	return count
}

func TestRecorder_PersistsEvents(t *testing.T) {
	conn := newTestDB(t)
	recorder := NewRecorder(conn, 16)
	defer recorder.Close()

	recorder.Record(Event{
		TraceID:     "trace-1",
		UpdateID:    100,
		IdentityKey: "u:42",
		ChatID:      900,
		Query:       "dune",
		Outcome:     models.OutcomeCompleted,
		Latency:     1200 * time.Millisecond,
		Detail:      map[string]interface{}{"source": "tmdb"},
	})

	deadline := time.Now().Add(3 * time.Second)
	for countSearchLogs(t, conn) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the event to persist")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var row models.SearchLog
	if errFirst := conn.First(&row).Error; errFirst != nil {
		t.Fatalf("expected row, got %v", errFirst)
	}
	if row.TraceID != "trace-1" || row.IdentityKey != "u:42" || row.Outcome != models.OutcomeCompleted {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.LatencyMS != 1200 {
		t.Fatalf("expected latency 1200ms, got %d", row.LatencyMS)
	}
	if len(row.Detail) == 0 {
		t.Fatal("expected detail payload to persist")
	}
}

func TestRecorder_CloseDrainsQueue(t *testing.T) {
	conn := newTestDB(t)
	recorder := NewRecorder(conn, 16)

	for i := 0; i < 5; i++ {
		recorder.Record(Event{TraceID: "t", UpdateID: int64(i), IdentityKey: "u:1", Outcome: models.OutcomeCompleted})
	}
	recorder.Close()

	if count := countSearchLogs(t, conn); count != 5 {
		t.Fatalf("expected 5 rows after close, got %d", count)
	}
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	conn := newTestDB(t)

	// No writer goroutine, so the queue can only absorb its capacity.
	recorder := &Recorder{db: conn, queue: make(chan Event, 1), stop: make(chan struct{}), done: make(chan struct{})}

	for i := 0; i < 3; i++ {
		recorder.Record(Event{TraceID: "t", IdentityKey: "u:1", Outcome: models.OutcomeCompleted})
	}
	if recorder.Dropped() != 2 {
		t.Fatalf("expected 2 dropped events, got %d", recorder.Dropped())
	}
}

func TestRecorder_NilSafety(t *testing.T) {
	var recorder *Recorder
	recorder.Record(Event{TraceID: "t"})
	recorder.Close()
	if recorder.Dropped() != 0 {
		t.Fatal("expected zero drops on nil recorder")
	}
}

func TestRecorder_Prune(t *testing.T) {
	conn := newTestDB(t)
	recorder := NewRecorder(conn, 16)
	defer recorder.Close()

	old := models.SearchLog{TraceID: "old", UpdateID: 1, IdentityKey: "u:1", Outcome: models.OutcomeCompleted, CreatedAt: time.Now().UTC().AddDate(0, 0, -40)}
	fresh := models.SearchLog{TraceID: "fresh", UpdateID: 2, IdentityKey: "u:1", Outcome: models.OutcomeCompleted, CreatedAt: time.Now().UTC()}
	if errCreate := conn.Create(&old).Error; errCreate != nil {
		t.Fatalf("expected insert to succeed, got %v", errCreate)
	}
	if errCreate := conn.Create(&fresh).Error; errCreate != nil {
		t.Fatalf("expected insert to succeed, got %v", errCreate)
	}

	removed, errPrune := recorder.Prune(context.Background(), time.Now().UTC().AddDate(0, 0, -30))
	if errPrune != nil {
		t.Fatalf("expected prune to succeed, got %v", errPrune)
	}
	if removed != 1 {
		t.Fatalf("expected 1 row pruned, got %d", removed)
	}

	var rows []models.SearchLog
	if errFind := conn.Find(&rows).Error; errFind != nil {
		t.Fatalf("expected find to succeed, got %v", errFind)
	}
	if len(rows) != 1 || rows[0].TraceID != "fresh" {
		t.Fatalf("expected only the fresh row to remain, got %+v", rows)
	}
}

func TestRetentionDays_Default(t *testing.T) {
	if days := RetentionDays(); days != 30 {
		t.Fatalf("expected default retention 30 days, got %d", days)
	}
}

// Package activity persists pipeline outcomes as search log rows without
// ever blocking the request path.
package activity

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allmovies/ultrapro/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
	closeTimeout     = 5 * time.Second
)

// Event captures one processed update for the audit trail.
type Event struct {
	TraceID     string
	UpdateID    int64
	IdentityKey string
	ChatID      int64
	Query       string
	Outcome     string
	Latency     time.Duration
	Detail      map[string]interface{}
}

// Recorder persists events from a bounded queue. Record never blocks; when
// the queue is full the event is counted as dropped and forgotten.
type Recorder struct {
	db      *gorm.DB
	queue   chan Event
	dropped atomic.Int64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewRecorder constructs a Recorder and starts its writer.
func NewRecorder(db *gorm.DB, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &Recorder{
		db:    db,
		queue: make(chan Event, queueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues the event for persistence. Full queue drops the event.
func (r *Recorder) Record(event Event) {
	if r == nil || r.db == nil {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.dropped.Add(1)
		log.Debugf("activity: queue full, dropped event for trace %s", event.TraceID)
	}
}

// Dropped reports how many events were discarded due to a full queue.
func (r *Recorder) Dropped() int64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Close drains pending events and stops the writer. Events still queued
// after the drain deadline are abandoned.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		close(r.stop)
		select {
		case <-r.done:
		case <-time.After(closeTimeout):
			log.Warn("activity: close timed out before the queue drained")
		}
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case event := <-r.queue:
			r.write(event)
		case <-r.stop:
			for {
				select {
				case event := <-r.queue:
					r.write(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(event Event) {
	dbCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var detail datatypes.JSON
	if len(event.Detail) > 0 {
		if encoded, errMarshal := json.Marshal(event.Detail); errMarshal == nil {
			detail = datatypes.JSON(encoded)
		}
	}

	row := models.SearchLog{
		TraceID:     event.TraceID,
		UpdateID:    event.UpdateID,
		IdentityKey: event.IdentityKey,
		ChatID:      event.ChatID,
		Query:       event.Query,
		Outcome:     event.Outcome,
		LatencyMS:   event.Latency.Milliseconds(),
		Detail:      detail,
		CreatedAt:   time.Now().UTC(),
	}
	if errCreate := r.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).Warn("activity: failed to persist search log")
	}
}

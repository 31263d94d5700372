// Package dispatch admits verified updates through rate limiting and the
// result cache, then hands them to the bot handler on a bounded worker
// pool. Admission is decided synchronously so the webhook can acknowledge
// immediately; everything after admission happens out-of-band.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/allmovies/ultrapro/internal/activity"
	"github.com/allmovies/ultrapro/internal/models"
	"github.com/allmovies/ultrapro/internal/ratelimit"
	"github.com/allmovies/ultrapro/internal/resultcache"
	"github.com/allmovies/ultrapro/internal/telegram"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	defaultWorkers        = 8
	defaultQueueFactor    = 4
	defaultHandlerTimeout = 20 * time.Second
	sendTimeout           = 15 * time.Second

	// throttleReply is the courtesy message sent to throttled chats.
	throttleReply = "⏳ Too many requests. Slow down."
)

// Ack statuses returned to the HTTP layer.
const (
	AckAccepted  = "accepted"
	AckThrottled = "throttled"
	AckInvalid   = "invalid"
)

// Ack is the synchronous admission decision for one delivery.
type Ack struct {
	Status     string
	RetryAfter time.Duration
}

// Reply is what a handler wants sent back to the chat. A photo reply wins
// over text when both are set.
type Reply struct {
	Text      string
	PhotoURL  string
	Caption   string
	ParseMode string
	Meta      map[string]interface{}
}

// Handler runs the business logic for one update. Returning a nil Reply
// with a nil error means deliberate silence.
type Handler interface {
	Handle(ctx context.Context, update *telegram.Update) (*Reply, error)
}

// Sender delivers replies to the chat platform.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text, parseMode string) (*telegram.Message, error)
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption, parseMode string) (*telegram.Message, error)
}

// Config tunes the dispatcher pool.
type Config struct {
	Workers        int
	QueueSize      int
	HandlerTimeout time.Duration
}

// Dispatcher is the admission pipeline.
type Dispatcher struct {
	handler  Handler
	sender   Sender
	limiter  *ratelimit.Manager
	cache    *resultcache.Cache
	recorder *activity.Recorder

	handlerTimeout time.Duration
	queue          chan func()
	stop           chan struct{}
	workersDone    sync.WaitGroup
	closeOnce      sync.Once
}

// New constructs a Dispatcher and starts its workers.
func New(cfg Config, handler Handler, sender Sender, limiter *ratelimit.Manager, cache *resultcache.Cache, recorder *activity.Recorder) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * defaultQueueFactor
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	d := &Dispatcher{
		handler:        handler,
		sender:         sender,
		limiter:        limiter,
		cache:          cache,
		recorder:       recorder,
		handlerTimeout: cfg.HandlerTimeout,
		queue:          make(chan func(), cfg.QueueSize),
		stop:           make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.workersDone.Add(1)
		go d.runWorker()
	}
	return d
}

// Close stops the workers after draining queued work.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		close(d.stop)
		d.workersDone.Wait()
	})
}

// Dispatch admits one verified delivery. The returned Ack is ready as soon
// as rate limiting has decided; handler work runs on the pool.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) Ack {
	if d == nil {
		return Ack{Status: AckInvalid}
	}

	update, errParse := telegram.ParseUpdate(raw)
	if errParse != nil {
		log.WithError(errParse).Warn("dispatch: rejecting unparseable update")
		return Ack{Status: AckInvalid}
	}

	identityKey := ratelimit.IdentityKey(update.SenderID(), update.ChatID())
	if identityKey == "" {
		// Updates without a message (channel posts, edits) are
		// acknowledged and skipped.
		log.Debugf("dispatch: ignoring update %d without a sender", update.UpdateID)
		return Ack{Status: AckAccepted}
	}

	traceID := uuid.NewString()
	started := time.Now()

	result, errAllow := d.limiter.Allow(ctx, identityKey)
	if errAllow != nil {
		// Admission control failing open beats dropping live traffic.
		log.WithError(errAllow).Warn("dispatch: rate limit check failed, admitting")
		result = ratelimit.Result{Allowed: true}
	}
	if !result.Allowed {
		d.record(activity.Event{
			TraceID:     traceID,
			UpdateID:    update.UpdateID,
			IdentityKey: identityKey,
			ChatID:      update.ChatID(),
			Query:       update.Text(),
			Outcome:     models.OutcomeThrottled,
			Latency:     time.Since(started),
			Detail:      map[string]interface{}{"retry_after_seconds": ceilSeconds(result.RetryAfter)},
		})
		d.submit(func() {
			d.send(update.ChatID(), &Reply{Text: throttleReply})
		})
		return Ack{Status: AckThrottled, RetryAfter: result.RetryAfter}
	}

	submitted := d.submit(func() {
		d.process(traceID, started, identityKey, update)
	})
	if !submitted {
		log.Warnf("dispatch: queue full, dropping update %d", update.UpdateID)
		d.record(activity.Event{
			TraceID:     traceID,
			UpdateID:    update.UpdateID,
			IdentityKey: identityKey,
			ChatID:      update.ChatID(),
			Query:       update.Text(),
			Outcome:     models.OutcomeDropped,
			Latency:     time.Since(started),
		})
	}
	return Ack{Status: AckAccepted}
}

// process runs the post-admission pipeline for one update.
func (d *Dispatcher) process(traceID string, started time.Time, identityKey string, update *telegram.Update) {
	event := activity.Event{
		TraceID:     traceID,
		UpdateID:    update.UpdateID,
		IdentityKey: identityKey,
		ChatID:      update.ChatID(),
		Query:       update.Text(),
	}

	var reply *Reply
	var cached bool
	var errHandle error

	if update.Command() != "" {
		// Command replies are moment-bound, so they bypass the cache.
		reply, errHandle = d.invokeHandler(update)
	} else {
		fingerprint := resultcache.Fingerprint(identityKey, normalizePayload(update.Text()))
		value, shared, errDo := d.cache.Do(context.Background(), fingerprint, func(ctx context.Context) (interface{}, error) {
			computed, errCompute := d.invokeHandler(update)
			if errCompute != nil {
				return nil, errCompute
			}
			return computed, nil
		})
		errHandle = errDo
		cached = shared
		if value != nil {
			reply, _ = value.(*Reply)
		}
	}

	event.Latency = time.Since(started)
	switch {
	case errHandle != nil:
		event.Outcome = classifyFailure(errHandle)
		event.Detail = map[string]interface{}{"error": errHandle.Error()}
		if event.Outcome == models.OutcomeTimeout {
			log.Warnf("dispatch: handler timed out for update %d (trace %s)", update.UpdateID, traceID)
		} else {
			log.WithError(errHandle).Warnf("dispatch: handler failed for update %d (trace %s)", update.UpdateID, traceID)
		}
	case cached:
		event.Outcome = models.OutcomeCacheHit
		event.Detail = mergeDetail(reply, map[string]interface{}{"cached": true})
	default:
		event.Outcome = models.OutcomeCompleted
		event.Detail = mergeDetail(reply, nil)
	}

	if errHandle == nil && reply != nil {
		d.send(update.ChatID(), reply)
	}
	d.record(event)
}

// invokeHandler runs the handler with its own deadline, detached from the
// webhook request. Panics and timeouts come back as errors.
func (d *Dispatcher) invokeHandler(update *telegram.Update) (*Reply, error) {
	handlerCtx, cancel := context.WithTimeout(context.Background(), d.handlerTimeout)
	defer cancel()

	var reply *Reply
	errRun := runSafely(func() error {
		computed, errHandle := d.handler.Handle(handlerCtx, update)
		reply = computed
		return errHandle
	})
	if errRun != nil {
		if handlerCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("dispatch: handler deadline exceeded: %w", handlerCtx.Err())
		}
		return nil, errRun
	}
	return reply, nil
}

// send delivers a reply with its own deadline. Failures are logged and
// swallowed; the platform already got its acknowledgment.
func (d *Dispatcher) send(chatID int64, reply *Reply) {
	if d.sender == nil || reply == nil || chatID == 0 {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	var errSend error
	if reply.PhotoURL != "" {
		_, errSend = d.sender.SendPhoto(sendCtx, chatID, reply.PhotoURL, reply.Caption, reply.ParseMode)
	} else if reply.Text != "" {
		_, errSend = d.sender.SendMessage(sendCtx, chatID, reply.Text, reply.ParseMode)
	}
	if errSend != nil {
		log.WithError(errSend).Warn("dispatch: failed to send reply")
	}
}

func (d *Dispatcher) record(event activity.Event) {
	d.recorder.Record(event)
}

// submit queues work without blocking. A full queue reports false.
func (d *Dispatcher) submit(fn func()) bool {
	select {
	case <-d.stop:
		return false
	default:
	}
	select {
	case d.queue <- fn:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) runWorker() {
	defer d.workersDone.Done()
	for {
		select {
		case fn := <-d.queue:
			fn()
		case <-d.stop:
			for {
				select {
				case fn := <-d.queue:
					fn()
				default:
					return
				}
			}
		}
	}
}

func runSafely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: handler panic: %v", r)
		}
	}()
	return fn()
}

func classifyFailure(err error) string {
	if err == nil {
		return models.OutcomeCompleted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.OutcomeTimeout
	}
	return models.OutcomeHandlerError
}

// normalizePayload folds a query to its cache-relevant form.
func normalizePayload(text string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(text)))
}

func mergeDetail(reply *Reply, extra map[string]interface{}) map[string]interface{} {
	if reply == nil && extra == nil {
		return nil
	}
	merged := make(map[string]interface{})
	if reply != nil {
		for key, value := range reply.Meta {
			merged[key] = value
		}
	}
	for key, value := range extra {
		merged[key] = value
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

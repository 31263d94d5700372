package telegram

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// pollTimeoutSeconds is the long-poll hold passed to getUpdates.
	pollTimeoutSeconds = 30

	// pollErrorBackoff spaces out retries after a failed poll.
	pollErrorBackoff = 3 * time.Second
)

// Poller pulls updates over long polling and hands the raw payloads to the
// intake callback. It is the development-mode substitute for the webhook.
type Poller struct {
	client  *Client
	intake  func(ctx context.Context, raw []byte)
	started atomic.Bool
}

// NewPoller builds a poller that feeds each raw update to intake.
func NewPoller(client *Client, intake func(ctx context.Context, raw []byte)) *Poller {
	return &Poller{client: client, intake: intake}
}

// Start launches the poll loop once. It reports false when the loop is
// already running, so repeated start requests stay harmless.
func (p *Poller) Start(ctx context.Context) bool {
	if p == nil || p.client == nil || p.intake == nil {
		return false
	}
	if !p.started.CompareAndSwap(false, true) {
		return false
	}
	go p.run(ctx)
	return true
}

// Running reports whether the poll loop has been started.
func (p *Poller) Running() bool {
	if p == nil {
		return false
	}
	return p.started.Load()
}

func (p *Poller) run(ctx context.Context) {
	log.Info("telegram: update polling started")

	var offset int64
	for {
		select {
		case <-ctx.Done():
			log.Info("telegram: update polling stopped")
			return
		default:
		}

		updates, errPoll := p.client.GetUpdates(ctx, offset, pollTimeoutSeconds)
		if errPoll != nil {
			if ctx.Err() != nil {
				log.Info("telegram: update polling stopped")
				return
			}
			log.WithError(errPoll).Warn("telegram: get updates failed")
			select {
			case <-ctx.Done():
			case <-time.After(pollErrorBackoff):
			}
			continue
		}

		for _, raw := range updates {
			parsed, errParse := ParseUpdate(raw)
			if errParse != nil {
				log.WithError(errParse).Warn("telegram: skipping unparseable update")
				continue
			}
			if parsed.UpdateID >= offset {
				offset = parsed.UpdateID + 1
			}
			p.intake(ctx, raw)
		}
	}
}

// Package status advances persisted message status (sent, delivered, read)
// from the recipient side. Updates are fire-and-forget for the caller: they
// are retried with bounded backoff and an exhausted update is logged as a
// warning, never surfaced as a blocking error.
package status

import (
	"context"
	"time"

	"support-chat/internal/domain"
	chat_errors "support-chat/pkg/errors"
	"support-chat/pkg/logger"
	"support-chat/pkg/metrics"
)

// Updater persists one forward status transition. A lower-or-equal target is
// a no-op, not an error.
type Updater interface {
	UpdateStatus(ctx context.Context, messageID string, status domain.MessageStatus) error
}

type Config struct {
	MaxAttempts int
	RetryBase   time.Duration
	// OpDelay spaces out queued updates so batch mark-read cannot overwhelm
	// the store.
	OpDelay   time.Duration
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.OpDelay < 0 {
		c.OpDelay = 0
	} else if c.OpDelay == 0 {
		c.OpDelay = 100 * time.Millisecond
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

type job struct {
	messageID string
	status    domain.MessageStatus
}

type Pipeline struct {
	updater Updater
	log     *logger.Logger
	cfg     Config

	jobs chan job
}

func NewPipeline(updater Updater, log *logger.Logger, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		updater: updater,
		log:     log,
		cfg:     cfg,
		jobs:    make(chan job, cfg.QueueSize),
	}
}

// Run processes queued updates one at a time until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			p.process(ctx, j)
			if p.cfg.OpDelay > 0 {
				timer := time.NewTimer(p.cfg.OpDelay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return
				}
			}
		}
	}
}

// MarkDelivered records that the recipient's client received the realtime
// insert event for the message.
func (p *Pipeline) MarkDelivered(messageID string) {
	p.enqueue(job{messageID: messageID, status: domain.StatusDelivered})
}

// MarkRead records that messages were presented to the recipient: here, read
// means the message was rendered in a conversation view that is open and
// focused, signalled explicitly by that client. The batch is serialized
// through the single worker, one update at a time.
func (p *Pipeline) MarkRead(messageIDs ...string) {
	for _, id := range messageIDs {
		p.enqueue(job{messageID: id, status: domain.StatusRead})
	}
}

func (p *Pipeline) enqueue(j job) {
	select {
	case p.jobs <- j:
	default:
		p.log.Warnf("status queue full, dropping %s update for %s", j.status, j.messageID)
	}
}

func (p *Pipeline) process(ctx context.Context, j job) {
	var err error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		err = p.updater.UpdateStatus(ctx, j.messageID, j.status)
		if err == nil {
			metrics.StatusTransitionsTotal.WithLabelValues(string(j.status)).Inc()
			return
		}
		if chat_errors.IsPermission(err) {
			// Retrying cannot help; the caller needs to re-authenticate.
			p.log.Warnf("status update rejected for %s: %v", j.messageID, err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if attempt < p.cfg.MaxAttempts {
			timer := time.NewTimer(p.cfg.RetryBase * time.Duration(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}
	metrics.StatusRetriesExhaustedTotal.Inc()
	p.log.Warnf("%v: %s after %d attempts: %v", chat_errors.ErrRetriesExhausted, j.messageID, p.cfg.MaxAttempts, err)
}

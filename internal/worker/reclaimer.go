package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"notulis.app/bot/common/logger"
	"notulis.app/bot/internal/queue"
)

type ReclaimerConfig struct {
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
	// MaxDeliveries sends an entry to the DLQ once Redis has delivered it
	// this many times without an ack.
	MaxDeliveries int64
}

// Reclaimer periodically takes over stale pending messages. This handles
// a worker dying after XREADGROUP but before XACK.
type Reclaimer struct {
	consumer  *queue.RedisConsumer
	cfg       ReclaimerConfig
	processor queue.MessageProcessor

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReclaimer(consumer *queue.RedisConsumer, cfg ReclaimerConfig, processor queue.MessageProcessor) *Reclaimer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}
	return &Reclaimer{
		consumer:  consumer,
		cfg:       cfg,
		processor: processor,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until Stop is called or ctx is done.
func (r *Reclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "notulis.worker.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			if err := r.ReclaimOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "reclaim cycle error", "error", err)
			}
		}
	}
}

func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// ReclaimOnce performs one reclaim cycle.
func (r *Reclaimer) ReclaimOnce(ctx context.Context) error {
	pending, err := r.consumer.Pending(ctx, r.cfg.MinIdle, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "found stale pending messages", "count", len(pending))

	for _, p := range pending {
		r.reclaimMessage(ctx, p)
	}
	return nil
}

func (r *Reclaimer) reclaimMessage(ctx context.Context, pending redis.XPendingExt) {
	msgID := pending.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{StreamMessageID: &msgID})

	raw, ok, err := r.consumer.Claim(ctx, pending.ID, r.cfg.MinIdle)
	if err != nil {
		slog.ErrorContext(ctx, "failed to reclaim message",
			"error", err,
			"original_consumer", pending.Consumer)
		return
	}
	if !ok {
		slog.DebugContext(ctx, "message already reclaimed by another worker")
		return
	}

	parsed, err := queue.ParseMessage(raw)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse reclaimed message, acknowledging to prevent loop",
			"error", err)
		_ = r.consumer.Ack(ctx, queue.Message{ID: raw.ID, Raw: raw})
		return
	}

	if pending.RetryCount >= r.cfg.MaxDeliveries {
		slog.ErrorContext(ctx, "reclaimed message delivered too often, sending to DLQ",
			"deliveries", pending.RetryCount)
		if err := r.consumer.SendDLQ(ctx, parsed, "exceeded delivery limit"); err != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", err)
		}
		return
	}

	slog.InfoContext(ctx, "reclaiming stale message",
		"original_consumer", pending.Consumer,
		"idle_time", pending.Idle,
		"retry_count", pending.RetryCount)

	start := time.Now()
	if err := r.processor(ctx, parsed); err != nil {
		slog.ErrorContext(ctx, "processing reclaimed message failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "reclaimed message processed",
		"duration_ms", time.Since(start).Milliseconds())
}

package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

// OutboxConfig tunes the relay. Zero values fall back to the defaults below.
type OutboxConfig struct {
	Interval   time.Duration
	BatchSize  int
	ClaimTTL   time.Duration
	MaxRetries int
}

func (c OutboxConfig) withDefaults() OutboxConfig {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	return c
}

// OutboxWorker relays committed order events to the broker. Events sharing
// a partition key (one order) leave in the order they were written: once one
// of them fails, the rest of that order's events wait for the next pass.
type OutboxWorker struct {
	logger    *slog.Logger
	outbox    ports.OutboxRepository
	publisher ports.EventPublisher
	cfg       OutboxConfig
	nowFn     func() time.Time
}

func NewOutboxWorker(logger *slog.Logger, outbox ports.OutboxRepository, publisher ports.EventPublisher, cfg OutboxConfig) *OutboxWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxWorker{
		logger:    logger.With("module", "events.outbox_worker", "layer", "adapter"),
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// Run relays batches on every tick until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox pass failed",
				"operation", "outbox_process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayStats counts what one pass did with its claimed batch.
type RelayStats struct {
	Claimed      int
	Published    int
	Failed       int
	DeadLettered int
	Held         int
}

type relayOutcome int

const (
	relayPublished relayOutcome = iota
	relayRetry
	relayDeadLettered
)

// ProcessOnce claims one batch and relays it.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) (RelayStats, error) {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.cfg.BatchSize, claimToken, w.nowFn().Add(w.cfg.ClaimTTL))
	if err != nil {
		return RelayStats{}, err
	}

	stats := RelayStats{Claimed: len(records)}
	blocked := map[string]bool{}
	for _, rec := range records {
		if blocked[rec.PartitionKey] {
			stats.Held++
			w.settle(ctx, "release_outbox_claim", rec, w.outbox.ReleaseClaim(ctx, rec.OutboxID, claimToken))
			continue
		}
		switch w.relay(ctx, rec, claimToken) {
		case relayPublished:
			stats.Published++
		case relayRetry:
			stats.Failed++
			blocked[rec.PartitionKey] = true
		case relayDeadLettered:
			stats.DeadLettered++
			blocked[rec.PartitionKey] = true
		}
	}

	if stats.Claimed > 0 {
		w.logger.InfoContext(ctx, "outbox batch relayed",
			"operation", "outbox_process_once",
			"outcome", "success",
			"batch_size", stats.Claimed,
			"published_count", stats.Published,
			"failed_count", stats.Failed,
			"dead_lettered_count", stats.DeadLettered,
			"held_count", stats.Held,
		)
	}
	return stats, nil
}

func (w *OutboxWorker) relay(ctx context.Context, rec ports.OutboxRecord, claimToken string) relayOutcome {
	now := w.nowFn()
	if rec.RetryCount >= w.cfg.MaxRetries {
		w.settle(ctx, "dead_letter_outbox_record", rec,
			w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry threshold reached before publish", now))
		return relayDeadLettered
	}

	publishErr := w.publisher.Publish(ctx, rec.EventType, rec.PartitionKey, rec.Payload)
	if publishErr == nil {
		w.settle(ctx, "mark_outbox_published", rec, w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now))
		return relayPublished
	}

	attempts := rec.RetryCount + 1
	if attempts >= w.cfg.MaxRetries {
		w.logger.ErrorContext(ctx, "outbox event dead-lettered",
			"operation", "publish_event",
			"outcome", "failure",
			"outbox_id", rec.OutboxID,
			"event_type", rec.EventType,
			"partition_key", rec.PartitionKey,
			"retry_count", attempts,
			"error", publishErr,
		)
		w.settle(ctx, "dead_letter_outbox_record", rec,
			w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, publishErr.Error(), now))
		return relayDeadLettered
	}

	w.logger.WarnContext(ctx, "outbox publish failed, will retry",
		"operation", "publish_event",
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"partition_key", rec.PartitionKey,
		"retry_count", attempts,
		"error", publishErr,
	)
	w.settle(ctx, "mark_outbox_failed", rec, w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, publishErr.Error(), now))
	return relayRetry
}

// settle logs a failed bookkeeping write. The record stays claimed until its
// lease lapses and is then relayed again, so consumers must tolerate repeats.
func (w *OutboxWorker) settle(ctx context.Context, operation string, rec ports.OutboxRecord, err error) {
	if err == nil {
		return
	}
	w.logger.ErrorContext(ctx, "outbox bookkeeping failed",
		"operation", operation,
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"partition_key", rec.PartitionKey,
		"error", err,
	)
}

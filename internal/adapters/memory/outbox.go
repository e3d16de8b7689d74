package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

type OutboxRepository struct {
	s *Store
}

func (r *OutboxRepository) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.outboxIndex[event.EventID]; ok {
		return domain.ErrConflict
	}
	r.s.enqueue(event)
	return nil
}

func (r *OutboxRepository) ClaimUnpublished(_ context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, fmt.Errorf("claim token is required")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	out := []ports.OutboxRecord{}
	for i := range r.s.outbox {
		if len(out) >= limit {
			break
		}
		rec := &r.s.outbox[i]
		if rec.PublishedAt != nil || rec.DeadLetteredAt != nil {
			continue
		}
		if rec.ClaimUntil != nil && !rec.ClaimUntil.Before(now) {
			continue
		}
		token := claimToken
		until := claimUntil
		rec.ClaimToken = &token
		rec.ClaimUntil = &until
		out = append(out, *rec)
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(_ context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	return r.update(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		published := at
		rec.PublishedAt = &published
	})
}

func (r *OutboxRepository) MarkFailed(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.update(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		msg, failedAt := errMsg, at
		rec.RetryCount++
		rec.LastError = &msg
		rec.LastErrorAt = &failedAt
	})
}

func (r *OutboxRepository) MarkDeadLettered(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.update(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		msg, failedAt := errMsg, at
		rec.RetryCount++
		rec.LastError = &msg
		rec.LastErrorAt = &failedAt
		rec.DeadLetteredAt = &failedAt
	})
}

func (r *OutboxRepository) ReleaseClaim(_ context.Context, outboxID uuid.UUID, claimToken string) error {
	return r.update(outboxID, claimToken, func(*ports.OutboxRecord) {})
}

func (r *OutboxRepository) update(outboxID uuid.UUID, claimToken string, fn func(*ports.OutboxRecord)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	idx, ok := r.s.outboxIndex[outboxID]
	if !ok {
		return nil
	}
	rec := &r.s.outbox[idx]
	if rec.ClaimToken == nil || *rec.ClaimToken != claimToken {
		return nil
	}
	fn(rec)
	rec.ClaimToken = nil
	rec.ClaimUntil = nil
	return nil
}

// Records returns a snapshot of the outbox in insertion order.
func (r *OutboxRepository) Records() []ports.OutboxRecord {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]ports.OutboxRecord(nil), r.s.outbox...)
}

// EventTypes lists the queued event types in insertion order.
func (r *OutboxRepository) EventTypes() []string {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]string, 0, len(r.s.outbox))
	for _, rec := range r.s.outbox {
		out = append(out, rec.EventType)
	}
	return out
}

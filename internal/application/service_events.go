package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/contracts"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

// newEvent wraps data in the event envelope. An encoding failure is returned
// so the owning write is abandoned instead of storing an empty payload.
func (s *Service) newEvent(eventType, partitionKey, traceID string, data any, now time.Time) (ports.OutboxEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return ports.OutboxEvent{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	if strings.TrimSpace(traceID) == "" {
		traceID = uuid.NewString()
	}
	eventID := uuid.New()
	envelope, err := json.Marshal(contracts.EventEnvelope{
		EventID:       eventID.String(),
		EventType:     eventType,
		OccurredAt:    now,
		PartitionKey:  partitionKey,
		SourceService: s.cfg.ServiceName,
		TraceID:       traceID,
		SchemaVersion: "v1",
		Data:          raw,
	})
	if err != nil {
		return ports.OutboxEvent{}, fmt.Errorf("encode %s envelope: %w", eventType, err)
	}
	return ports.OutboxEvent{
		EventID:      eventID,
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      envelope,
		OccurredAt:   now,
	}, nil
}

func (s *Service) orderEvent(eventType string, order domain.Order, previous domain.OrderStatus, actor Actor, reason string, now time.Time) (ports.OutboxEvent, error) {
	payload := contracts.OrderEventPayload{
		OrderID:      order.ID,
		MerchantID:   order.MerchantID,
		InfluencerID: order.InfluencerID,
		Status:       string(order.Status),
		TotalAmount:  order.TotalAmount,
		NetAmount:    order.NetAmount,
		Currency:     order.Currency,
		Actor:        actor.SubjectID,
		Reason:       reason,
		OccurredAt:   now.Format(time.RFC3339),
	}
	if previous != "" {
		payload.PreviousStatus = string(previous)
	}
	return s.newEvent(eventType, order.ID, actor.RequestID, payload, now)
}

// ledgerEntry records an escrow movement of the full order total. A release
// settles the whole total: net to the influencer, commission to the platform.
func ledgerEntry(order domain.Order, entryType domain.LedgerEntryType, now time.Time) domain.LedgerEntry {
	return domain.LedgerEntry{
		EntryID:      uuid.NewString(),
		OrderID:      order.ID,
		InfluencerID: order.InfluencerID,
		EntryType:    entryType,
		Amount:       order.TotalAmount,
		OccurredAt:   now,
	}
}

// processorCtx bounds every outbound processor call.
func (s *Service) processorCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.ProcessorTimeout)
}

func (s *Service) logFailure(ctx context.Context, operation string, err error, fields ...any) {
	base := []any{"module", "application", "operation", operation, "outcome", "failure", "error", err}
	s.logger.ErrorContext(ctx, "operation failed", append(base, fields...)...)
}

func (s *Service) logSuccess(ctx context.Context, operation string, fields ...any) {
	base := []any{"module", "application", "operation", operation, "outcome", "success"}
	s.logger.InfoContext(ctx, "operation completed", append(base, fields...)...)
}

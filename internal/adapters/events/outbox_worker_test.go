package events_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/events"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/memory"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

type published struct {
	eventType    string
	partitionKey string
}

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	sent     []published
}

func (p *fakePublisher) Publish(_ context.Context, eventType, partitionKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, published{eventType: eventType, partitionKey: partitionKey})
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func enqueue(t *testing.T, outbox ports.OutboxRepository, eventType, orderID string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := outbox.Enqueue(context.Background(), ports.OutboxEvent{
		EventID:      id,
		EventType:    eventType,
		PartitionKey: orderID,
		Payload:      []byte(`{"order_id":"` + orderID + `"}`),
		OccurredAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return id
}

func TestOutboxWorkerPublishesBatch(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	publisher := &fakePublisher{}
	enqueue(t, repos.Outbox, "order.payment_authorized", "order-1")
	enqueue(t, repos.Outbox, "order.accepted", "order-1")

	worker := events.NewOutboxWorker(quietLogger(), repos.Outbox, publisher, events.OutboxConfig{Interval: time.Second, BatchSize: 10, ClaimTTL: time.Minute, MaxRetries: 3})
	if _, err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	if len(publisher.sent) != 2 {
		t.Fatalf("expected two published events, got %d", len(publisher.sent))
	}
	if publisher.sent[0].partitionKey != "order-1" || publisher.sent[1].eventType != "order.accepted" {
		t.Fatalf("unexpected publish order %+v", publisher.sent)
	}
	for _, rec := range repos.Outbox.Records() {
		if rec.PublishedAt == nil || rec.ClaimToken != nil {
			t.Fatalf("record %s should be published and unclaimed", rec.OutboxID)
		}
	}

	if _, err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(publisher.sent) != 2 {
		t.Fatalf("published records must not be sent again, got %d", len(publisher.sent))
	}
}

func TestOutboxWorkerRetriesThenDeadLetters(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	publisher := &fakePublisher{failures: 10}
	id := enqueue(t, repos.Outbox, "order.completed", "order-2")

	worker := events.NewOutboxWorker(quietLogger(), repos.Outbox, publisher, events.OutboxConfig{Interval: time.Second, BatchSize: 10, ClaimTTL: time.Minute, MaxRetries: 2})
	ctx := context.Background()

	if _, err := worker.ProcessOnce(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	rec := record(t, repos.Outbox, id)
	if rec.RetryCount != 1 || rec.LastError == nil || rec.DeadLetteredAt != nil {
		t.Fatalf("first failure should schedule a retry, got %+v", rec)
	}

	if _, err := worker.ProcessOnce(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	rec = record(t, repos.Outbox, id)
	if rec.DeadLetteredAt == nil || rec.RetryCount != 2 {
		t.Fatalf("second failure should dead-letter at the threshold, got %+v", rec)
	}

	publisher.failures = 0
	if _, err := worker.ProcessOnce(ctx); err != nil {
		t.Fatalf("third pass: %v", err)
	}
	if len(publisher.sent) != 0 {
		t.Fatalf("dead-lettered records are never published, got %+v", publisher.sent)
	}
}

func TestOutboxWorkerRecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	publisher := &fakePublisher{failures: 1}
	id := enqueue(t, repos.Outbox, "order.delivered", "order-3")

	worker := events.NewOutboxWorker(quietLogger(), repos.Outbox, publisher, events.OutboxConfig{Interval: time.Second, BatchSize: 10, ClaimTTL: time.Minute, MaxRetries: 5})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := worker.ProcessOnce(ctx); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}
	rec := record(t, repos.Outbox, id)
	if rec.PublishedAt == nil || rec.RetryCount != 1 {
		t.Fatalf("expected publish on retry, got %+v", rec)
	}
}

func TestOutboxWorkerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	publisher := &fakePublisher{}
	enqueue(t, repos.Outbox, "order.cancelled", "order-4")

	worker := events.NewOutboxWorker(quietLogger(), repos.Outbox, publisher, events.OutboxConfig{Interval: 10 * time.Millisecond, BatchSize: 10, ClaimTTL: time.Minute, MaxRetries: 3})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := worker.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.sent) != 1 {
		t.Fatalf("expected the pending event published once, got %d", len(publisher.sent))
	}
}

func TestOutboxWorkerHoldsLaterEventsOfFailedOrder(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	publisher := &fakePublisher{failures: 1}
	enqueue(t, repos.Outbox, "order.payment_authorized", "order-5")
	held := enqueue(t, repos.Outbox, "order.accepted", "order-5")
	enqueue(t, repos.Outbox, "order.cancelled", "order-6")

	worker := events.NewOutboxWorker(quietLogger(), repos.Outbox, publisher, events.OutboxConfig{Interval: time.Second, BatchSize: 10, ClaimTTL: time.Minute, MaxRetries: 5})
	ctx := context.Background()

	stats, err := worker.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if stats.Failed != 1 || stats.Held != 1 || stats.Published != 1 {
		t.Fatalf("unexpected first pass stats %+v", stats)
	}
	if len(publisher.sent) != 1 || publisher.sent[0].partitionKey != "order-6" {
		t.Fatalf("only the unrelated order may be published, got %+v", publisher.sent)
	}
	rec := record(t, repos.Outbox, held)
	if rec.PublishedAt != nil || rec.ClaimToken != nil || rec.RetryCount != 0 {
		t.Fatalf("held record should be released untouched, got %+v", rec)
	}

	if _, err := worker.ProcessOnce(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(publisher.sent) != 3 {
		t.Fatalf("expected both order-5 events on the second pass, got %+v", publisher.sent)
	}
	if publisher.sent[1].eventType != "order.payment_authorized" || publisher.sent[2].eventType != "order.accepted" {
		t.Fatalf("order-5 events out of order: %+v", publisher.sent)
	}
}

type brokenBookkeeping struct {
	*memory.OutboxRepository
}

func (brokenBookkeeping) MarkPublished(context.Context, uuid.UUID, string, time.Time) error {
	return errors.New("connection reset")
}

func TestOutboxWorkerLogsBookkeepingFailures(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	publisher := &fakePublisher{}
	enqueue(t, repos.Outbox, "order.completed", "order-7")

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	worker := events.NewOutboxWorker(logger, brokenBookkeeping{repos.Outbox}, publisher, events.OutboxConfig{BatchSize: 10, ClaimTTL: time.Minute})

	stats, err := worker.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("process once: %v", err)
	}
	if stats.Published != 1 {
		t.Fatalf("expected the publish to count, got %+v", stats)
	}
	out := logs.String()
	if !strings.Contains(out, `"operation":"mark_outbox_published"`) || !strings.Contains(out, "connection reset") {
		t.Fatalf("bookkeeping failure was not logged: %s", out)
	}
}

func record(t *testing.T, outbox *memory.OutboxRepository, id uuid.UUID) ports.OutboxRecord {
	t.Helper()
	for _, rec := range outbox.Records() {
		if rec.OutboxID == id {
			return rec
		}
	}
	t.Fatalf("outbox record %s not found", id)
	return ports.OutboxRecord{}
}

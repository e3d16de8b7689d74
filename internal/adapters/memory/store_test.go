package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/memory"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func seedOrder(repos *memory.Repositories, id string, status domain.OrderStatus) domain.Order {
	order := domain.Order{
		ID:                id,
		MerchantID:        "merchant-1",
		InfluencerID:      "influencer-1",
		TotalAmount:       decimal.NewFromInt(200),
		NetAmount:         decimal.NewFromInt(180),
		Currency:          "eur",
		CheckoutSessionID: "cs_" + id,
		Status:            status,
		CreatedAt:         base,
		UpdatedAt:         base,
	}
	repos.Orders.Seed(order)
	return order
}

func TestTransitionIsCompareAndSwap(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	ctx := context.Background()
	seedOrder(repos, "order-1", domain.StatusPaymentAuthorized)

	move := ports.OrderTransition{
		OrderID: "order-1",
		From:    []domain.OrderStatus{domain.StatusPaymentAuthorized},
		To:      domain.StatusInProgress,
		At:      base.Add(time.Hour),
	}
	updated, err := repos.Orders.Transition(ctx, move)
	if err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if updated.Status != domain.StatusInProgress || updated.AcceptedAt == nil {
		t.Fatalf("unexpected order %+v", updated)
	}
	if _, err := repos.Orders.Transition(ctx, move); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("a stale source status must lose, got %v", err)
	}
	if _, err := repos.Orders.Transition(ctx, ports.OrderTransition{OrderID: "missing", To: domain.StatusCancelled}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLegacyStatusesMatchAndAreRewritten(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	ctx := context.Background()
	seedOrder(repos, "order-legacy", domain.OrderStatus("accepted"))

	read, err := repos.Orders.GetByID(ctx, "order-legacy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if read.Status != domain.StatusInProgress {
		t.Fatalf("legacy spelling should read canonically, got %s", read.Status)
	}

	listed, err := repos.Orders.List(ctx, ports.OrderListQuery{Statuses: []domain.OrderStatus{domain.StatusInProgress}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("legacy rows must match canonical filters, got %d", len(listed))
	}

	if _, err := repos.Orders.Transition(ctx, ports.OrderTransition{
		OrderID: "order-legacy",
		From:    []domain.OrderStatus{domain.StatusInProgress},
		To:      domain.StatusDelivered,
		At:      base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("transition from legacy: %v", err)
	}
	if raw := repos.Orders.RawStatus("order-legacy"); raw != string(domain.StatusDelivered) {
		t.Fatalf("writes use the canonical spelling, got %q", raw)
	}
}

func TestSecondPendingContestationConflicts(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	ctx := context.Background()
	seedOrder(repos, "order-2", domain.StatusDelivered)
	seedOrder(repos, "order-3", domain.StatusCompleted)

	contest := func(orderID, id string, from domain.OrderStatus) error {
		_, err := repos.Orders.Transition(ctx, ports.OrderTransition{
			OrderID: orderID,
			From:    []domain.OrderStatus{from},
			To:      domain.StatusContested,
			At:      base,
			Effects: ports.Effects{Contestation: &domain.Contestation{
				ID:      id,
				OrderID: orderID,
				Status:  domain.ContestationPending,
			}},
		})
		return err
	}
	if err := contest("order-2", "c-1", domain.StatusDelivered); err != nil {
		t.Fatalf("first contestation: %v", err)
	}
	if err := contest("order-2", "c-2", domain.StatusContested); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for a second pending contestation, got %v", err)
	}
	if err := contest("order-3", "c-3", domain.StatusCompleted); err != nil {
		t.Fatalf("another order may be contested: %v", err)
	}

	pending, err := repos.Contestations.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected two pending contestations, got %d", len(pending))
	}
}

func TestDecisionIsRecordedOnce(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	ctx := context.Background()
	seedOrder(repos, "order-4", domain.StatusContested)
	if _, err := repos.Orders.Transition(ctx, ports.OrderTransition{
		OrderID: "order-4",
		From:    []domain.OrderStatus{domain.StatusContested},
		To:      domain.StatusContested,
		At:      base,
		Effects: ports.Effects{Contestation: &domain.Contestation{ID: "c-4", OrderID: "order-4", Status: domain.ContestationPending}},
	}); err != nil {
		t.Fatalf("seed contestation: %v", err)
	}

	decide := ports.OrderTransition{
		OrderID: "order-4",
		From:    []domain.OrderStatus{domain.StatusContested},
		To:      domain.StatusPlatformValidated,
		At:      base.Add(time.Hour),
		Effects: ports.Effects{Decision: &ports.ContestationDecisionRecord{
			ContestationID: "c-4",
			Status:         domain.ContestationRejected,
			Decision:       domain.DecisionRelease,
			DecidedBy:      "admin-1",
			DecidedAt:      base.Add(time.Hour),
		}},
	}
	if _, err := repos.Orders.Transition(ctx, decide); err != nil {
		t.Fatalf("decide: %v", err)
	}
	decided, err := repos.Contestations.GetByID(ctx, "c-4")
	if err != nil {
		t.Fatalf("get contestation: %v", err)
	}
	if decided.Status != domain.ContestationRejected || decided.DecidedBy != "admin-1" || decided.DecidedAt == nil {
		t.Fatalf("decision not recorded: %+v", decided)
	}

	decide.From = []domain.OrderStatus{domain.StatusPlatformValidated}
	if _, err := repos.Orders.Transition(ctx, decide); !errors.Is(err, domain.ErrContestationDecided) {
		t.Fatalf("expected decided error, got %v", err)
	}
}

func TestDeletePendingOnlyRemovesPendingOrders(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	ctx := context.Background()
	seedOrder(repos, "order-pending", domain.StatusPending)
	seedOrder(repos, "order-authorized", domain.StatusPaymentAuthorized)

	abandoned := ports.OutboxEvent{EventID: uuid.New(), EventType: domain.EventOrderCheckoutAbandoned, PartitionKey: "order-pending", OccurredAt: base}
	deleted, err := repos.Orders.DeletePendingBySession(ctx, "cs_order-pending", ports.Effects{Outbox: []ports.OutboxEvent{abandoned}})
	if err != nil || !deleted {
		t.Fatalf("pending order should be deleted, got %v %v", deleted, err)
	}
	if _, err := repos.Orders.GetByCheckoutSessionID(ctx, "cs_order-pending"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("session index should be cleared, got %v", err)
	}
	if types := repos.Outbox.EventTypes(); len(types) != 1 || types[0] != domain.EventOrderCheckoutAbandoned {
		t.Fatalf("deletion effects should be applied, got %v", types)
	}

	deleted, err = repos.Orders.DeletePending(ctx, "order-authorized", ports.Effects{})
	if err != nil || deleted {
		t.Fatalf("authorized order must survive, got %v %v", deleted, err)
	}
	if deleted, _ := repos.Orders.DeletePending(ctx, "missing", ports.Effects{}); deleted {
		t.Fatalf("missing order cannot be deleted")
	}
}

func TestRecordCaptureHappensOnce(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	ctx := context.Background()
	seedOrder(repos, "order-5", domain.StatusPaymentAuthorized)

	capture := ports.CaptureRecord{
		OrderID:    "order-5",
		From:       []domain.OrderStatus{domain.StatusPaymentAuthorized},
		To:         domain.StatusInProgress,
		CapturedAt: base,
		Revenue:    domain.Revenue{ID: "rev-5", OrderID: "order-5", InfluencerID: "influencer-1", Amount: decimal.NewFromInt(180), Status: domain.RevenuePending},
		Transfer:   domain.Transfer{OrderID: "order-5"},
	}
	if _, err := repos.Orders.RecordCapture(ctx, capture); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if _, err := repos.Orders.RecordCapture(ctx, capture); !errors.Is(err, domain.ErrPaymentAlreadyCaptured) {
		t.Fatalf("expected already captured, got %v", err)
	}
	if _, err := repos.Revenues.GetByOrderID(ctx, "order-5"); err != nil {
		t.Fatalf("revenue should be recorded with the capture: %v", err)
	}

	reverted, err := repos.Orders.RevertCapture(ctx, ports.CaptureReversal{OrderID: "order-5", To: domain.StatusPaymentAuthorized, At: base.Add(time.Hour)})
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if reverted.PaymentCaptured || reverted.CapturedAt != nil {
		t.Fatalf("capture flag should be cleared, got %+v", reverted)
	}
	if _, err := repos.Revenues.GetByOrderID(ctx, "order-5"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("revenue should be removed by the revert, got %v", err)
	}
}

func TestLockerFailsFastWhileHeld(t *testing.T) {
	t.Parallel()

	locker := memory.NewLocker()
	ctx := context.Background()
	release, err := locker.Acquire(ctx, "order:1", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := locker.Acquire(ctx, "order:1", time.Minute); !errors.Is(err, domain.ErrOrderBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if _, err := locker.Acquire(ctx, "order:2", time.Minute); err != nil {
		t.Fatalf("other keys are independent: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := locker.Acquire(ctx, "order:1", time.Minute); err != nil {
		t.Fatalf("released key should be free: %v", err)
	}
}

func TestAttachPaymentIntentKeepsStatus(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	ctx := context.Background()
	seedOrder(repos, "order-closed", domain.StatusCancelled)

	attach := ports.IntentAttachment{OrderID: "order-closed", PaymentIntentID: "pi_late", At: base.Add(time.Hour)}
	updated, err := repos.Orders.AttachPaymentIntent(ctx, attach)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if updated.Status != domain.StatusCancelled || updated.PaymentIntentID != "pi_late" {
		t.Fatalf("unexpected order %+v", updated)
	}
	if _, err := repos.Orders.AttachPaymentIntent(ctx, attach); err != nil {
		t.Fatalf("re-attaching the same intent should succeed: %v", err)
	}
	attach.PaymentIntentID = "pi_other"
	if _, err := repos.Orders.AttachPaymentIntent(ctx, attach); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("a different intent must be refused, got %v", err)
	}
	if _, err := repos.Orders.AttachPaymentIntent(ctx, ports.IntentAttachment{OrderID: "missing", PaymentIntentID: "pi_x"}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

func TestExpireCheckoutsPagesThroughEveryOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		checkout, err := f.service.Authorize(ctx, merchant, application.AuthorizeInput{OfferID: offerID})
		if err != nil {
			t.Fatalf("authorize %d: %v", i, err)
		}
		ids = append(ids, checkout.OrderID)
	}

	f.clock.Advance(23 * time.Hour)
	report, err := f.service.RunSweep(ctx, application.SweepExpireCheckouts)
	if err != nil {
		t.Fatalf("early sweep: %v", err)
	}
	if report.Applied != 0 {
		t.Fatalf("nothing is due before 24h, got %+v", report)
	}

	f.clock.Advance(2 * time.Hour)
	report, err = f.service.RunSweep(ctx, application.SweepExpireCheckouts)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Scanned != 3 || report.Applied != 3 {
		t.Fatalf("expected all three checkouts expired across pages, got %+v", report)
	}
	for _, id := range ids {
		if _, err := f.repos.Orders.GetByID(ctx, id); !errors.Is(err, domain.ErrOrderNotFound) {
			t.Fatalf("order %s should be gone, got %v", id, err)
		}
	}
}

func TestExpireAuthorizationsVoidsHold(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.authorizedOrder(t)

	f.clock.Advance(145 * time.Hour)
	report, err := f.service.RunSweep(ctx, application.SweepExpireAuthorizations)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Applied != 1 {
		t.Fatalf("expected one expired authorization, got %+v", report)
	}
	stored, _ := f.repos.Orders.GetByID(ctx, order.ID)
	if stored.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", stored.Status)
	}
	intent, _ := f.sandbox.Intent(order.PaymentIntentID)
	if intent.Status != ports.IntentCanceled {
		t.Fatalf("hold should be released at the processor, got %s", intent.Status)
	}
}

func TestAutoConfirmSweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.deliveredOrder(t)

	f.clock.Advance(49 * time.Hour)
	report, err := f.service.RunSweep(ctx, application.SweepAutoConfirmDeliveries)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Applied != 1 {
		t.Fatalf("expected one auto-confirmed delivery, got %+v", report)
	}
	stored, _ := f.repos.Orders.GetByID(ctx, order.ID)
	if stored.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if f.revenueStatus(t, order.ID) != domain.RevenueAvailable {
		t.Fatalf("auto-confirmed revenue should be available")
	}

	report, err = f.service.RunSweep(ctx, application.SweepAutoConfirmDeliveries)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if report.Applied != 0 {
		t.Fatalf("a second pass must change nothing, got %+v", report)
	}
}

func TestRunSweepUnknownName(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.service.RunSweep(context.Background(), "vacuum"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(application.SweepNames()) != 4 {
		t.Fatalf("expected four sweeps, got %v", application.SweepNames())
	}
}

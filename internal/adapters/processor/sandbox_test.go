package processor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/processor"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

func heldIntent(t *testing.T, sandbox *processor.Sandbox) (sessionID, intentID string) {
	t.Helper()
	session, err := sandbox.CreateCheckoutSession(context.Background(), ports.CheckoutSessionParams{
		OrderID:     "order-1",
		Currency:    "eur",
		AmountMinor: 20000,
		Metadata:    map[string]string{"order_id": "order-1"},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	intentID, err = sandbox.CompleteCheckout(session.ID)
	if err != nil {
		t.Fatalf("complete checkout: %v", err)
	}
	return session.ID, intentID
}

func TestSandboxCaptureHonoursIdempotencyKey(t *testing.T) {
	t.Parallel()

	sandbox := processor.NewSandbox()
	ctx := context.Background()
	_, intentID := heldIntent(t, sandbox)

	first, err := sandbox.CapturePaymentIntent(ctx, intentID, "capture:order-1")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if first.Status != ports.IntentSucceeded || first.AmountReceivedMinor != 20000 || first.TransferRef == "" {
		t.Fatalf("unexpected captured intent %+v", first)
	}

	again, err := sandbox.CapturePaymentIntent(ctx, intentID, "capture:order-1")
	if err != nil {
		t.Fatalf("replayed capture: %v", err)
	}
	if again.TransferRef != first.TransferRef {
		t.Fatalf("replay returned a different result: %+v", again)
	}

	if _, err := sandbox.CapturePaymentIntent(ctx, intentID, "capture:other"); !errors.Is(err, domain.ErrProcessor) {
		t.Fatalf("a fresh key on a captured intent must fail, got %v", err)
	}
	if sandbox.Calls(processor.OpCaptureIntent) != 3 {
		t.Fatalf("expected three capture calls, got %d", sandbox.Calls(processor.OpCaptureIntent))
	}
}

func TestSandboxCancelReleasesHold(t *testing.T) {
	t.Parallel()

	sandbox := processor.NewSandbox()
	ctx := context.Background()
	_, intentID := heldIntent(t, sandbox)

	canceled, err := sandbox.CancelPaymentIntent(ctx, intentID, "requested_by_customer", "cancel:order-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != ports.IntentCanceled || canceled.AmountCapturableMinor != 0 {
		t.Fatalf("unexpected canceled intent %+v", canceled)
	}
	if _, err := sandbox.CapturePaymentIntent(ctx, intentID, "capture:order-1"); !errors.Is(err, domain.ErrProcessor) {
		t.Fatalf("a canceled hold cannot be captured, got %v", err)
	}
	if _, err := sandbox.GetPaymentIntent(ctx, "pi_unknown"); !errors.Is(err, domain.ErrProcessorRecordAbsent) {
		t.Fatalf("expected absent record, got %v", err)
	}
}

func TestSandboxFailNextAffectsOneCall(t *testing.T) {
	t.Parallel()

	sandbox := processor.NewSandbox()
	ctx := context.Background()
	_, intentID := heldIntent(t, sandbox)

	sandbox.FailNext(processor.OpGetIntent, nil)
	if _, err := sandbox.GetPaymentIntent(ctx, intentID); !errors.Is(err, domain.ErrProcessor) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if _, err := sandbox.GetPaymentIntent(ctx, intentID); err != nil {
		t.Fatalf("the failure applies to one call only: %v", err)
	}
}

func TestSandboxPayoutRequiresReadyAccount(t *testing.T) {
	t.Parallel()

	sandbox := processor.NewSandbox()
	ctx := context.Background()
	sandbox.PutAccount(ports.ConnectedAccount{ID: "acct_ready", PayoutsEnabled: true, HasExternalAccount: true})
	sandbox.PutAccount(ports.ConnectedAccount{ID: "acct_no_bank", PayoutsEnabled: true})

	params := ports.PayoutParams{ConnectedAccountID: "acct_ready", AmountMinor: 18000, Currency: "eur", IdempotencyKey: "payout:1"}
	payout, err := sandbox.CreatePayout(ctx, params)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if again, _ := sandbox.CreatePayout(ctx, params); again.ID != payout.ID {
		t.Fatalf("same key must return the same payout")
	}
	if len(sandbox.Payouts()) != 1 {
		t.Fatalf("expected one payout, got %d", len(sandbox.Payouts()))
	}

	params.ConnectedAccountID = "acct_no_bank"
	params.IdempotencyKey = "payout:2"
	if _, err := sandbox.CreatePayout(ctx, params); !errors.Is(err, domain.ErrProcessor) {
		t.Fatalf("account without a bank cannot receive payouts, got %v", err)
	}
}

func TestSandboxCheckoutRejectsUnknownDestination(t *testing.T) {
	t.Parallel()

	sandbox := processor.NewSandbox()
	_, err := sandbox.CreateCheckoutSession(context.Background(), ports.CheckoutSessionParams{
		OrderID:            "order-2",
		AmountMinor:        1000,
		DestinationAccount: "acct_missing",
		ExpiresAt:          time.Now().Add(time.Hour),
	})
	if !errors.Is(err, domain.ErrProcessorRecordAbsent) {
		t.Fatalf("expected absent destination, got %v", err)
	}
}

func TestSandboxExpireCheckoutSession(t *testing.T) {
	t.Parallel()

	sandbox := processor.NewSandbox()
	ctx := context.Background()
	open, err := sandbox.CreateCheckoutSession(ctx, ports.CheckoutSessionParams{OrderID: "order-2", Currency: "eur", AmountMinor: 5000})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := sandbox.ExpireCheckoutSession(ctx, open.ID); err != nil {
		t.Fatalf("expire open session: %v", err)
	}
	if _, err := sandbox.CompleteCheckout(open.ID); !errors.Is(err, domain.ErrProcessor) {
		t.Fatalf("expired session cannot be paid, got %v", err)
	}

	paid, _ := heldIntent(t, sandbox)
	if err := sandbox.ExpireCheckoutSession(ctx, paid); !errors.Is(err, domain.ErrProcessor) {
		t.Fatalf("a completed session cannot be expired, got %v", err)
	}
	if err := sandbox.ExpireCheckoutSession(ctx, "cs_missing"); !errors.Is(err, domain.ErrProcessorRecordAbsent) {
		t.Fatalf("expected record absent, got %v", err)
	}
}

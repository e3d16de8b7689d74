package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/processor"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

func TestAuthorizeHoldsPaymentWithSplit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	checkout, err := f.service.Authorize(ctx, merchant, application.AuthorizeInput{OfferID: offerID})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if checkout.SessionID == "" || checkout.CheckoutURL == "" {
		t.Fatalf("checkout should return a session and url: %+v", checkout)
	}
	if !checkout.Split.Net.Equal(decimal.NewFromInt(180)) || !checkout.Split.Commission.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected split %+v", checkout.Split)
	}

	session, ok := f.sandbox.Session(checkout.SessionID)
	if !ok {
		t.Fatalf("sandbox has no session %s", checkout.SessionID)
	}
	if session.Params.AmountMinor != 20000 || session.Params.PlatformFeeMinor != 2000 {
		t.Fatalf("unexpected processor amounts %+v", session.Params)
	}
	if session.Params.DestinationAccount != connectedAccount {
		t.Fatalf("expected destination %s, got %s", connectedAccount, session.Params.DestinationAccount)
	}

	order, err := f.repos.Orders.GetByID(ctx, checkout.OrderID)
	if err != nil {
		t.Fatalf("pending order not stored: %v", err)
	}
	if order.Status != domain.StatusPending || order.PaymentCaptured {
		t.Fatalf("expected uncaptured pending order, got %s captured=%v", order.Status, order.PaymentCaptured)
	}
	if f.sandbox.Calls(processor.OpCaptureIntent) != 0 {
		t.Fatalf("authorize must not capture")
	}
}

func TestAuthorizeRejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.repos.Profiles.PutOffer(ports.Offer{ID: "too-big", InfluencerID: influencerID, Price: decimal.NewFromInt(10001), Currency: "eur", Active: true})
	f.repos.Profiles.PutOffer(ports.Offer{ID: "no-payout", InfluencerID: "influencer-without-account", Price: decimal.NewFromInt(50), Currency: "eur", Active: true})

	cases := []struct {
		name  string
		actor application.Actor
		offer string
		want  error
	}{
		{"anonymous", application.Actor{}, offerID, domain.ErrUnauthenticated},
		{"influencer cannot buy", influencer, offerID, domain.ErrForbidden},
		{"unknown offer", merchant, "missing", domain.ErrOfferNotFound},
		{"amount over limit", merchant, "too-big", domain.ErrAmountOutOfRange},
		{"no payout destination", merchant, "no-payout", domain.ErrPayoutDestinationMissing},
	}
	for _, tc := range cases {
		if _, err := f.service.Authorize(ctx, tc.actor, application.AuthorizeInput{OfferID: tc.offer}); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestAuthorizeSurfacesProcessorFailureWithoutStoringOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.sandbox.FailNext(processor.OpCreateCheckout, nil)

	_, err := f.service.Authorize(context.Background(), merchant, application.AuthorizeInput{OfferID: offerID})
	if !errors.Is(err, domain.ErrProcessor) {
		t.Fatalf("expected processor error, got %v", err)
	}
	orders, _ := f.repos.Orders.List(context.Background(), ports.OrderListQuery{})
	if len(orders) != 0 {
		t.Fatalf("no order should be stored, found %d", len(orders))
	}
}

func TestAcceptCapturesExactlyOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t)

	if order.Status != domain.StatusInProgress || !order.PaymentCaptured || order.CapturedAt == nil {
		t.Fatalf("expected captured in-progress order, got %+v", order)
	}
	if f.revenueStatus(t, order.ID) != domain.RevenuePending {
		t.Fatalf("revenue should be pending after capture")
	}
	transfer, err := f.repos.Transfers.GetByOrderID(ctx, order.ID)
	if err != nil {
		t.Fatalf("transfer not recorded: %v", err)
	}
	if !transfer.InfluencerAmount.Equal(decimal.NewFromInt(180)) || !transfer.PlatformFee.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected transfer split %+v", transfer)
	}

	for i := 0; i < 3; i++ {
		again, err := f.service.Capture(ctx, admin, order.ID)
		if err != nil {
			t.Fatalf("repeat capture %d: %v", i, err)
		}
		if !again.PaymentCaptured {
			t.Fatalf("repeat capture should return captured order")
		}
	}
	if calls := f.sandbox.Calls(processor.OpCaptureIntent); calls != 1 {
		t.Fatalf("expected exactly one processor capture, got %d", calls)
	}

	if _, err := f.service.PerformAction(ctx, influencer, application.ActionInput{OrderID: order.ID, Action: "accept"}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second accept should be an invalid transition, got %v", err)
	}
}

func TestCaptureFailureLeavesOrderUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.authorizedOrder(t)

	f.sandbox.FailNext(processor.OpCaptureIntent, nil)
	_, err := f.service.PerformAction(ctx, influencer, application.ActionInput{OrderID: order.ID, Action: "accept"})
	if !errors.Is(err, domain.ErrProcessor) {
		t.Fatalf("expected processor error, got %v", err)
	}
	stored, _ := f.repos.Orders.GetByID(ctx, order.ID)
	if stored.Status != domain.StatusPaymentAuthorized || stored.PaymentCaptured {
		t.Fatalf("failed capture must not change the order, got %s captured=%v", stored.Status, stored.PaymentCaptured)
	}
	if _, err := f.repos.Revenues.GetByOrderID(ctx, order.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no revenue may exist before capture, got %v", err)
	}

	retried, err := f.service.PerformAction(ctx, influencer, application.ActionInput{OrderID: order.ID, Action: "accept"})
	if err != nil {
		t.Fatalf("retry accept: %v", err)
	}
	if retried.Status != domain.StatusInProgress {
		t.Fatalf("expected in-progress after retry, got %s", retried.Status)
	}
}

func TestCaptureRequiresPrivilegeAndCapturableState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	checkout, err := f.service.Authorize(ctx, merchant, application.AuthorizeInput{OfferID: offerID})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if _, err := f.service.Capture(ctx, merchant, checkout.OrderID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("merchant capture should be forbidden, got %v", err)
	}
	if _, err := f.service.Capture(ctx, admin, checkout.OrderID); !errors.Is(err, domain.ErrPaymentNotCapturable) {
		t.Fatalf("pending order is not capturable, got %v", err)
	}
	if _, err := f.service.Capture(ctx, admin, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected order not found, got %v", err)
	}
}

func TestRefuseVoidsAuthorizationWithoutRevenue(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.authorizedOrder(t)

	refused, err := f.service.PerformAction(ctx, influencer, application.ActionInput{OrderID: order.ID, Action: "refuse", Reason: "not my audience"})
	if err != nil {
		t.Fatalf("refuse: %v", err)
	}
	if refused.Status != domain.StatusRefused {
		t.Fatalf("expected refused, got %s", refused.Status)
	}
	intent, _ := f.sandbox.Intent(order.PaymentIntentID)
	if intent.Status != ports.IntentCanceled {
		t.Fatalf("authorization should be canceled at the processor, got %s", intent.Status)
	}
	if f.sandbox.Calls(processor.OpCaptureIntent) != 0 {
		t.Fatalf("refusal must never capture")
	}
	if _, err := f.repos.Revenues.GetByOrderID(ctx, order.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("refused order must have no revenue, got %v", err)
	}

	balance, err := f.service.OrderLedger(ctx, merchant, order.ID)
	if err != nil {
		t.Fatalf("order ledger: %v", err)
	}
	if !balance.Voided.Equal(decimal.NewFromInt(200)) || !balance.Captured.IsZero() {
		t.Fatalf("unexpected ledger after refusal %+v", balance)
	}
}

func TestRefuseWhenProcessorCancelFailsKeepsOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.authorizedOrder(t)

	f.sandbox.FailNext(processor.OpCancelIntent, nil)
	if _, err := f.service.RefuseOrder(ctx, influencer, order.ID, ""); !errors.Is(err, domain.ErrProcessor) {
		t.Fatalf("expected processor error, got %v", err)
	}
	stored, _ := f.repos.Orders.GetByID(ctx, order.ID)
	if stored.Status != domain.StatusPaymentAuthorized {
		t.Fatalf("order must stay authorized when the void fails, got %s", stored.Status)
	}
}

func TestCancelAfterCaptureIsRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t)

	if _, err := f.service.Cancel(ctx, admin, order.ID, "merchant changed mind"); !errors.Is(err, domain.ErrPaymentAlreadyCaptured) {
		t.Fatalf("expected already captured, got %v", err)
	}
	if _, err := f.service.PerformAction(ctx, merchant, application.ActionInput{OrderID: order.ID, Action: "cancel"}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("merchant cancel of in-progress order should be invalid, got %v", err)
	}
}

func TestMerchantCancelsAuthorizedOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.authorizedOrder(t)

	cancelled, err := f.service.PerformAction(ctx, merchant, application.ActionInput{OrderID: order.ID, Action: "cancel", Reason: "wrong offer"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if !hasEvent(f.repos.Outbox.EventTypes(), domain.EventOrderCancelled) {
		t.Fatalf("expected %s event in outbox", domain.EventOrderCancelled)
	}
}

func TestActionsEnforceParties(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.authorizedOrder(t)

	cases := []struct {
		actor  application.Actor
		action string
		want   error
	}{
		{merchant, "accept", domain.ErrForbidden},
		{outsider, "refuse", domain.ErrForbidden},
		{influencer, "cancel", domain.ErrForbidden},
		{influencer, "confirm", domain.ErrForbidden},
		{influencer, "deliver", domain.ErrInvalidTransition},
		{influencer, "teleport", domain.ErrValidation},
		{application.Actor{}, "accept", domain.ErrUnauthenticated},
	}
	for _, tc := range cases {
		_, err := f.service.PerformAction(ctx, tc.actor, application.ActionInput{OrderID: order.ID, Action: tc.action})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s by %s: expected %v, got %v", tc.action, tc.actor.SubjectID, tc.want, err)
		}
	}
	if _, err := f.service.PerformAction(ctx, influencer, application.ActionInput{Action: "accept"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing order id should be a validation error, got %v", err)
	}
}

func TestDeliverConfirmReleasesRevenue(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.deliveredOrder(t)

	view, err := f.service.GetOrder(ctx, merchant, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if view.AutoConfirmAt == nil || !view.AutoConfirmAt.Equal(order.UpdatedAt.Add(48*time.Hour)) {
		t.Fatalf("expected auto-confirm 48h after delivery, got %v", view.AutoConfirmAt)
	}
	if view.CanContest {
		t.Fatalf("contest must not be offered right after delivery")
	}

	confirmed, err := f.service.PerformAction(ctx, merchant, application.ActionInput{OrderID: order.ID, Action: "confirm"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != domain.StatusCompleted || confirmed.CompletedAt == nil {
		t.Fatalf("expected completed order, got %s", confirmed.Status)
	}
	if f.revenueStatus(t, order.ID) != domain.RevenueAvailable {
		t.Fatalf("confirmed revenue should be available")
	}
}

func TestGetOrderAutoConfirmsLazily(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.deliveredOrder(t)

	f.clock.Advance(47 * time.Hour)
	view, err := f.service.GetOrder(ctx, influencer, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if view.Order.Status != domain.StatusDelivered {
		t.Fatalf("order should still be delivered before the window, got %s", view.Order.Status)
	}

	f.clock.Advance(time.Hour)
	view, err = f.service.GetOrder(ctx, influencer, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if view.Order.Status != domain.StatusCompleted {
		t.Fatalf("expected lazy auto-confirm, got %s", view.Order.Status)
	}
	if f.revenueStatus(t, order.ID) != domain.RevenueAvailable {
		t.Fatalf("auto-confirmed revenue should be available")
	}
}

func TestGetOrderRestrictsToPartiesAndAdmins(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.authorizedOrder(t)

	if _, err := f.service.GetOrder(ctx, outsider, order.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider read should be forbidden, got %v", err)
	}
	view, err := f.service.GetOrder(ctx, admin, order.ID)
	if err != nil {
		t.Fatalf("admin read: %v", err)
	}
	if len(view.AvailableActions) != 0 {
		t.Fatalf("admin is offered no party actions, got %v", view.AvailableActions)
	}
	view, err = f.service.GetOrder(ctx, influencer, order.ID)
	if err != nil {
		t.Fatalf("influencer read: %v", err)
	}
	want := map[domain.OrderAction]bool{domain.ActionAccept: true, domain.ActionRefuse: true}
	if len(view.AvailableActions) != len(want) {
		t.Fatalf("unexpected influencer actions %v", view.AvailableActions)
	}
	for _, a := range view.AvailableActions {
		if !want[a] {
			t.Fatalf("unexpected influencer action %s", a)
		}
	}
}

func TestLegacyStatusSpellingIsAccepted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.authorizedOrder(t)

	legacy := order
	legacy.Status = domain.OrderStatus("paid")
	f.repos.Orders.Seed(legacy)

	accepted, err := f.service.AcceptOrder(ctx, influencer, order.ID)
	if err != nil {
		t.Fatalf("accept legacy order: %v", err)
	}
	if accepted.Status != domain.StatusInProgress {
		t.Fatalf("expected in-progress, got %s", accepted.Status)
	}
	if raw := f.repos.Orders.RawStatus(order.ID); raw != string(domain.StatusInProgress) {
		t.Fatalf("new writes use the canonical spelling, got %q", raw)
	}
}

func TestConcurrentAcceptsCaptureOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.authorizedOrder(t)

	const workers = 8
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := f.service.AcceptOrder(ctx, influencer, order.ID)
			errs <- err
		}()
	}
	succeeded := 0
	for i := 0; i < workers; i++ {
		err := <-errs
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrOrderBusy), errors.Is(err, domain.ErrInvalidTransition):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful accept, got %d", succeeded)
	}
	if calls := f.sandbox.Calls(processor.OpCaptureIntent); calls != 1 {
		t.Fatalf("expected one processor capture, got %d", calls)
	}
}

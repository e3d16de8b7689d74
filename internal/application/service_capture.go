package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/contracts"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

// Cancellation reasons accepted by the processor.
const (
	cancelReasonRequested = "requested_by_customer"
	cancelReasonAbandoned = "abandoned"
)

// Authorize starts a checkout for an offer: the merchant's payment is held,
// not captured, and split between the influencer's payout account and the
// platform fee at creation. The stored order stays pending until the
// processor confirms the checkout through the webhook.
func (s *Service) Authorize(ctx context.Context, actor Actor, input AuthorizeInput) (CheckoutResult, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return CheckoutResult{}, domain.ErrUnauthenticated
	}
	if actor.Role != domain.RoleMerchant {
		return CheckoutResult{}, fmt.Errorf("%w: only merchants can start a checkout", domain.ErrForbidden)
	}
	offerID := strings.TrimSpace(input.OfferID)
	if offerID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: offer_id is required", domain.ErrValidation)
	}

	offer, err := s.profiles.GetOffer(ctx, offerID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !offer.Active {
		return CheckoutResult{}, fmt.Errorf("%w: offer is not available", domain.ErrValidation)
	}
	if offer.InfluencerID == actor.SubjectID {
		return CheckoutResult{}, fmt.Errorf("%w: cannot order your own offer", domain.ErrValidation)
	}
	if !offer.Price.IsPositive() || offer.Price.GreaterThan(s.cfg.MaxOrderAmount) {
		return CheckoutResult{}, fmt.Errorf("%w: amount must be between 0 and %s", domain.ErrAmountOutOfRange, s.cfg.MaxOrderAmount.StringFixed(2))
	}
	split, err := domain.SplitCommission(offer.Price, s.cfg.CommissionRate)
	if err != nil {
		return CheckoutResult{}, err
	}
	currency := strings.ToLower(offer.Currency)
	if currency == "" {
		currency = s.cfg.Currency
	}

	destination, err := s.payoutDestination(ctx, offer.InfluencerID)
	if err != nil {
		return CheckoutResult{}, err
	}
	customerID, err := s.ensureCustomer(ctx, actor.SubjectID)
	if err != nil {
		return CheckoutResult{}, err
	}

	now := s.nowFn()
	orderID := uuid.NewString()
	expiresAt := domain.ExpiresAt(now, s.cfg.CheckoutWindowHours)
	metadata := map[string]string{
		contracts.MetaOrderID:        orderID,
		contracts.MetaMerchantID:     actor.SubjectID,
		contracts.MetaInfluencerID:   offer.InfluencerID,
		contracts.MetaOfferID:        offer.ID,
		contracts.MetaTotalAmount:    split.Total.StringFixed(2),
		contracts.MetaNetAmount:      split.Net.StringFixed(2),
		contracts.MetaCommissionRate: split.Rate.String(),
		contracts.MetaCurrency:       currency,
	}

	pctx, cancel := s.processorCtx(ctx)
	session, err := s.processor.CreateCheckoutSession(pctx, ports.CheckoutSessionParams{
		OrderID:            orderID,
		CustomerID:         customerID,
		Title:              offer.Title,
		Currency:           currency,
		AmountMinor:        domain.ToMinorUnits(split.Total),
		PlatformFeeMinor:   domain.ToMinorUnits(split.Commission),
		DestinationAccount: destination,
		SuccessURL:         s.cfg.CheckoutSuccessURL,
		CancelURL:          s.cfg.CheckoutCancelURL,
		ExpiresAt:          expiresAt,
		Metadata:           metadata,
		IdempotencyKey:     "checkout-" + orderID,
	})
	cancel()
	if err != nil {
		s.logFailure(ctx, "create_checkout_session", err, "order_id", orderID, "offer_id", offer.ID)
		return CheckoutResult{}, err
	}

	order := domain.Order{
		ID:                orderID,
		MerchantID:        actor.SubjectID,
		InfluencerID:      offer.InfluencerID,
		OfferID:           offer.ID,
		TotalAmount:       split.Total,
		NetAmount:         split.Net,
		CommissionRate:    split.Rate,
		Currency:          currency,
		CheckoutSessionID: session.ID,
		Status:            domain.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	started, err := s.orderEvent(domain.EventOrderCheckoutStarted, order, "", actor, "", now)
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := s.orders.Create(ctx, order, ports.Effects{Outbox: []ports.OutboxEvent{started}}); err != nil {
		s.logFailure(ctx, "create_pending_order", err, "order_id", orderID, "session_id", session.ID)
		return CheckoutResult{}, err
	}
	s.logSuccess(ctx, "authorize", "order_id", orderID, "session_id", session.ID, "total_amount", split.Total.StringFixed(2))

	if !session.ExpiresAt.IsZero() {
		expiresAt = session.ExpiresAt
	}
	return CheckoutResult{
		OrderID:     orderID,
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		ExpiresAt:   expiresAt,
		Split:       split,
	}, nil
}

func (s *Service) payoutDestination(ctx context.Context, influencerID string) (string, error) {
	account, err := s.profiles.GetInfluencerAccount(ctx, influencerID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.ErrPayoutDestinationMissing
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(account.ConnectedAccountID) == "" {
		return "", domain.ErrPayoutDestinationMissing
	}
	pctx, cancel := s.processorCtx(ctx)
	defer cancel()
	connected, err := s.processor.GetConnectedAccount(pctx, account.ConnectedAccountID)
	if errors.Is(err, domain.ErrProcessorRecordAbsent) {
		return "", domain.ErrPayoutDestinationMissing
	}
	if err != nil {
		return "", err
	}
	if !connected.CanReceivePayouts() {
		return "", domain.ErrPayoutDestinationMissing
	}
	return connected.ID, nil
}

func (s *Service) ensureCustomer(ctx context.Context, merchantID string) (string, error) {
	merchant, err := s.profiles.GetMerchant(ctx, merchantID)
	if err != nil {
		return "", err
	}
	if merchant.CustomerID != "" {
		return merchant.CustomerID, nil
	}
	pctx, cancel := s.processorCtx(ctx)
	defer cancel()
	customerID, err := s.processor.CreateCustomer(pctx, ports.CreateCustomerParams{
		MerchantID:     merchant.ID,
		Email:          merchant.Email,
		IdempotencyKey: "customer-" + merchant.ID,
	})
	if err != nil {
		s.logFailure(ctx, "create_customer", err, "merchant_id", merchant.ID)
		return "", err
	}
	if err := s.profiles.SetMerchantCustomerID(ctx, merchant.ID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

// Capture takes the held funds for an order. It is idempotent: an order
// whose capture is already recorded is returned unchanged without any
// processor call.
func (s *Service) Capture(ctx context.Context, actor Actor, orderID string) (domain.Order, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSystem {
		return domain.Order{}, domain.ErrForbidden
	}
	var out domain.Order
	err := s.withOrderLock(ctx, orderID, func() error {
		order, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		out, err = s.captureOrder(ctx, actor, order, "")
		return err
	})
	return out, err
}

// Cancel voids the authorization of an uncaptured order and cancels it.
func (s *Service) Cancel(ctx context.Context, actor Actor, orderID, reason string) (domain.Order, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSystem {
		return domain.Order{}, domain.ErrForbidden
	}
	var out domain.Order
	err := s.withOrderLock(ctx, orderID, func() error {
		order, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		out, err = s.voidAndTransition(ctx, actor, order, domain.ActionCancel, cancelReasonRequested, reason)
		return err
	})
	return out, err
}

// captureOrder runs the processor capture and then records it locally.
// When advanceTo is set the status moves from payment_authorized in the same
// write.
func (s *Service) captureOrder(ctx context.Context, actor Actor, order domain.Order, advanceTo domain.OrderStatus) (domain.Order, error) {
	if order.PaymentCaptured {
		if advanceTo == "" {
			return order, nil
		}
		return s.transition(ctx, actor, order, domain.ActionAccept, "", ports.Effects{})
	}
	if order.Status != domain.StatusPaymentAuthorized && !order.Status.ImpliesCapture() {
		return domain.Order{}, domain.ErrPaymentNotCapturable
	}
	if order.PaymentIntentID == "" {
		return domain.Order{}, fmt.Errorf("%w: order has no payment intent", domain.ErrPaymentNotCapturable)
	}

	pctx, cancel := s.processorCtx(ctx)
	defer cancel()
	intent, err := s.processor.GetPaymentIntent(pctx, order.PaymentIntentID)
	if err != nil {
		s.logFailure(ctx, "get_payment_intent", err, "order_id", order.ID)
		return domain.Order{}, err
	}
	switch intent.Status {
	case ports.IntentRequiresCapture:
		if intent.AmountCapturableMinor < domain.ToMinorUnits(order.TotalAmount) {
			return domain.Order{}, domain.ErrInsufficientAuthorization
		}
		intent, err = s.processor.CapturePaymentIntent(pctx, order.PaymentIntentID, "capture-"+order.ID)
		if err != nil {
			s.logFailure(ctx, "capture_payment_intent", err, "order_id", order.ID)
			return domain.Order{}, err
		}
		if intent.Status != ports.IntentSucceeded {
			return domain.Order{}, fmt.Errorf("%w: capture returned status %s", domain.ErrProcessor, intent.Status)
		}
	case ports.IntentSucceeded:
		s.logger.WarnContext(ctx, "payment already captured at processor; recording locally",
			"module", "application",
			"operation", "capture",
			"outcome", "recovered",
			"order_id", order.ID,
		)
	default:
		return domain.Order{}, fmt.Errorf("%w: processor status %s", domain.ErrPaymentNotCapturable, intent.Status)
	}

	return s.recordCapture(ctx, actor, order, intent, advanceTo)
}

func (s *Service) recordCapture(ctx context.Context, actor Actor, order domain.Order, intent ports.PaymentIntent, advanceTo domain.OrderStatus) (domain.Order, error) {
	now := s.nowFn()
	captured := order
	captured.PaymentCaptured = true
	captured.CapturedAt = &now
	from := []domain.OrderStatus{order.Status}
	if advanceTo != "" {
		from = []domain.OrderStatus{domain.StatusPaymentAuthorized}
		captured.ApplyStatus(advanceTo, now)
	}

	captureEvent, err := s.orderEvent(domain.EventOrderPaymentCaptured, captured, order.Status, actor, "", now)
	if err != nil {
		return domain.Order{}, err
	}
	transferRef := intent.TransferRef
	if transferRef == "" {
		transferRef = intent.ID
	}
	record := ports.CaptureRecord{
		OrderID:    order.ID,
		From:       from,
		To:         advanceTo,
		CapturedAt: now,
		Revenue:    newRevenue(order, now),
		Transfer: domain.Transfer{
			ID:               uuid.NewString(),
			OrderID:          order.ID,
			InfluencerID:     order.InfluencerID,
			GrossAmount:      order.TotalAmount,
			PlatformFee:      order.Commission(),
			InfluencerAmount: order.NetAmount,
			Currency:         order.Currency,
			ProcessorRef:     transferRef,
			CreatedAt:        now,
		},
		Effects: ports.Effects{
			Ledger: []domain.LedgerEntry{ledgerEntry(order, domain.LedgerCapture, now)},
			Outbox: []ports.OutboxEvent{captureEvent},
		},
	}
	updated, err := s.orders.RecordCapture(ctx, record)
	if errors.Is(err, domain.ErrPaymentAlreadyCaptured) {
		return s.orders.GetByID(ctx, order.ID)
	}
	if err != nil {
		s.logFailure(ctx, "record_capture", err, "order_id", order.ID, "payment_intent_id", order.PaymentIntentID)
		return domain.Order{}, err
	}
	s.logSuccess(ctx, "capture", "order_id", order.ID, "net_amount", order.NetAmount.StringFixed(2))
	return updated, nil
}

func newRevenue(order domain.Order, now time.Time) domain.Revenue {
	return domain.Revenue{
		ID:           uuid.NewString(),
		InfluencerID: order.InfluencerID,
		OrderID:      order.ID,
		Amount:       order.NetAmount,
		Currency:     order.Currency,
		Status:       domain.RevenuePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// voidAuthorization releases the processor hold. An already canceled intent
// counts as success; a captured one is reported as PaymentAlreadyCaptured.
func (s *Service) voidAuthorization(ctx context.Context, order domain.Order, processorReason string) error {
	if order.PaymentCaptured {
		return domain.ErrPaymentAlreadyCaptured
	}
	if order.PaymentIntentID == "" {
		return nil
	}
	pctx, cancel := s.processorCtx(ctx)
	defer cancel()
	intent, err := s.processor.GetPaymentIntent(pctx, order.PaymentIntentID)
	if errors.Is(err, domain.ErrProcessorRecordAbsent) {
		return nil
	}
	if err != nil {
		s.logFailure(ctx, "get_payment_intent", err, "order_id", order.ID)
		return err
	}
	switch intent.Status {
	case ports.IntentCanceled:
		return nil
	case ports.IntentSucceeded:
		s.logger.WarnContext(ctx, "processor reports capture the order does not record",
			"module", "application",
			"operation", "void_authorization",
			"outcome", "divergence",
			"order_id", order.ID,
		)
		return domain.ErrPaymentAlreadyCaptured
	}
	if _, err := s.processor.CancelPaymentIntent(pctx, order.PaymentIntentID, processorReason, "cancel-"+order.ID); err != nil {
		s.logFailure(ctx, "cancel_payment_intent", err, "order_id", order.ID)
		return err
	}
	return nil
}

// expireCheckout closes the hosted checkout of an order being cancelled
// before payment. Failure is only logged: a payment that still lands is
// voided when its completion event arrives.
func (s *Service) expireCheckout(ctx context.Context, order domain.Order) {
	if order.CheckoutSessionID == "" {
		return
	}
	pctx, cancel := s.processorCtx(ctx)
	defer cancel()
	if err := s.processor.ExpireCheckoutSession(pctx, order.CheckoutSessionID); err != nil {
		s.logger.WarnContext(ctx, "checkout session not expired",
			"module", "application",
			"operation", "expire_checkout_session",
			"outcome", "failure",
			"order_id", order.ID,
			"session_id", order.CheckoutSessionID,
			"error", err,
		)
	}
}

// voidAndTransition releases the hold first and moves the order second.
func (s *Service) voidAndTransition(ctx context.Context, actor Actor, order domain.Order, action domain.OrderAction, processorReason, reason string) (domain.Order, error) {
	if _, err := domain.NextStatus(order.Status, action); err != nil {
		if order.PaymentCaptured {
			return domain.Order{}, domain.ErrPaymentAlreadyCaptured
		}
		return domain.Order{}, err
	}
	if err := s.voidAuthorization(ctx, order, processorReason); err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.StatusPending && order.PaymentIntentID == "" {
		s.expireCheckout(ctx, order)
	}
	var effects ports.Effects
	if order.Status == domain.StatusPaymentAuthorized {
		effects.Ledger = []domain.LedgerEntry{ledgerEntry(order, domain.LedgerVoid, s.nowFn())}
	}
	return s.transition(ctx, actor, order, action, reason, effects)
}

// amountFromMeta parses a decimal metadata value.
func amountFromMeta(meta map[string]string, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(meta[key])
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: metadata %s missing", domain.ErrValidation, key)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: metadata %s invalid", domain.ErrValidation, key)
	}
	return v, nil
}

package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/contracts"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

// HandleWebhook verifies and applies one processor event. Every delivery is
// logged verbatim before anything else; the side effects are idempotent
// against current order state so a replayed event changes nothing.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookAck, error) {
	event, err := s.webhooks.Verify(payload, signature)
	if err != nil {
		s.logger.WarnContext(ctx, "webhook signature rejected",
			"module", "application",
			"operation", "verify_webhook",
			"outcome", "failure",
			"error", err,
		)
		return WebhookAck{}, domain.ErrSignatureInvalid
	}

	now := s.nowFn()
	entry := domain.PaymentLog{
		ID:         uuid.NewString(),
		EventID:    event.ID,
		EventType:  event.Type,
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: now,
	}
	if err := s.paymentLogs.Append(ctx, entry); err != nil {
		s.logFailure(ctx, "append_payment_log", err, "event_id", event.ID)
		return WebhookAck{}, err
	}

	ack := WebhookAck{Received: true, EventType: event.Type}
	var session contracts.CheckoutSessionObject
	if isCheckoutEvent(event.Type) {
		if err := json.Unmarshal(event.Object, &session); err != nil {
			s.markLog(ctx, entry.ID, "decode checkout session: "+err.Error())
			return WebhookAck{}, fmt.Errorf("%w: malformed checkout session object", domain.ErrValidation)
		}
		ack.SessionID = session.ID
	}

	processed, err := s.paymentLogs.HasProcessed(ctx, event.ID)
	if err != nil {
		return WebhookAck{}, err
	}
	if processed {
		ack.Duplicate = true
		s.markLog(ctx, entry.ID, "")
		s.logSuccess(ctx, "handle_webhook", "event_id", event.ID, "event_type", event.Type, "duplicate", true)
		return ack, nil
	}

	switch event.Type {
	case domain.EventCheckoutSessionCompleted, domain.EventCheckoutSessionAsyncSucceeded:
		ack.Deferred, err = s.handleCheckoutCompleted(ctx, session)
	case domain.EventCheckoutSessionExpired:
		err = s.handleCheckoutExpired(ctx, session)
	default:
		ack.Ignored = true
		s.logger.InfoContext(ctx, "webhook event ignored",
			"module", "application",
			"operation", "handle_webhook",
			"outcome", "ignored",
			"event_id", event.ID,
			"event_type", event.Type,
		)
	}
	if err != nil {
		s.markLog(ctx, entry.ID, err.Error())
		s.logFailure(ctx, "handle_webhook", err, "event_id", event.ID, "event_type", event.Type, "session_id", session.ID)
		return WebhookAck{}, err
	}
	s.markLog(ctx, entry.ID, "")
	s.logSuccess(ctx, "handle_webhook", "event_id", event.ID, "event_type", event.Type, "session_id", session.ID)
	return ack, nil
}

func isCheckoutEvent(eventType string) bool {
	switch eventType {
	case domain.EventCheckoutSessionCompleted, domain.EventCheckoutSessionAsyncSucceeded, domain.EventCheckoutSessionExpired:
		return true
	default:
		return false
	}
}

func (s *Service) markLog(ctx context.Context, logID, processingErr string) {
	if err := s.paymentLogs.MarkProcessed(ctx, logID, s.nowFn(), processingErr); err != nil {
		s.logFailure(ctx, "mark_payment_log", err, "log_id", logID)
	}
}

// handleCheckoutCompleted is the only path that creates or advances an order
// into payment_authorized. It reports deferred when the intent holds no funds
// yet; asynchronous payment methods settle later under a separate event.
func (s *Service) handleCheckoutCompleted(ctx context.Context, session contracts.CheckoutSessionObject) (bool, error) {
	if strings.TrimSpace(session.ID) == "" {
		return false, fmt.Errorf("%w: checkout session id missing", domain.ErrValidation)
	}
	intentID := string(session.PaymentIntent)
	if intentID == "" {
		return false, fmt.Errorf("%w: checkout session has no payment intent", domain.ErrValidation)
	}

	pctx, cancel := s.processorCtx(ctx)
	intent, err := s.processor.GetPaymentIntent(pctx, intentID)
	cancel()
	if err != nil {
		return false, err
	}
	if intent.Status != ports.IntentRequiresCapture && intent.Status != ports.IntentSucceeded {
		s.logger.InfoContext(ctx, "checkout completed without held funds",
			"module", "application",
			"operation", "handle_checkout_completed",
			"outcome", "deferred",
			"session_id", session.ID,
			"payment_intent_id", intentID,
			"intent_status", intent.Status,
		)
		return true, nil
	}

	actor := SystemActor("webhook:" + session.ID)
	return false, s.withLock(ctx, "session:"+session.ID, func() error {
		existing, err := s.orders.GetByCheckoutSessionID(ctx, session.ID)
		switch {
		case err == nil:
			return s.advanceCheckedOutOrder(ctx, actor, existing, intent)
		case errors.Is(err, domain.ErrNotFound):
			return s.createCheckedOutOrder(ctx, actor, session, intentID)
		default:
			return err
		}
	})
}

func (s *Service) advanceCheckedOutOrder(ctx context.Context, actor Actor, order domain.Order, intent ports.PaymentIntent) error {
	switch {
	case order.Status == domain.StatusPending:
	case order.Status.IsTerminal() && !order.PaymentCaptured:
		return s.releaseLatePayment(ctx, actor, order, intent)
	default:
		return nil
	}
	next := order
	next.PaymentIntentID = intent.ID
	now := s.nowFn()
	_, err := s.transition(ctx, actor, next, domain.ActionCheckoutCompleted, "", ports.Effects{
		Ledger: []domain.LedgerEntry{ledgerEntry(order, domain.LedgerAuthorize, now)},
	})
	if errors.Is(err, domain.ErrStateConflict) {
		return nil
	}
	return err
}

// releaseLatePayment handles a checkout paid after its order was closed. The
// intent is stored before the void so the hold stays traceable when the void
// fails and the event is redelivered.
func (s *Service) releaseLatePayment(ctx context.Context, actor Actor, order domain.Order, intent ports.PaymentIntent) error {
	if order.PaymentIntentID == "" {
		now := s.nowFn()
		event, err := s.orderEvent(domain.EventOrderLatePayment, order, order.Status, actor, "payment received after the order was closed", now)
		if err != nil {
			return err
		}
		attached, err := s.orders.AttachPaymentIntent(ctx, ports.IntentAttachment{
			OrderID:         order.ID,
			PaymentIntentID: intent.ID,
			At:              now,
			Effects:         ports.Effects{Outbox: []ports.OutboxEvent{event}},
		})
		if err != nil {
			s.logFailure(ctx, "attach_late_payment_intent", err, "order_id", order.ID, "payment_intent_id", intent.ID)
			return err
		}
		order = attached
	}
	order.PaymentIntentID = intent.ID

	err := s.voidAuthorization(ctx, order, cancelReasonRequested)
	if errors.Is(err, domain.ErrPaymentAlreadyCaptured) {
		// Funds were taken for a closed order; a retry cannot undo that.
		s.logger.ErrorContext(ctx, "late payment already captured at processor",
			"module", "application",
			"operation", "release_late_payment",
			"outcome", "divergence",
			"order_id", order.ID,
			"payment_intent_id", intent.ID,
		)
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.WarnContext(ctx, "late payment voided",
		"module", "application",
		"operation", "release_late_payment",
		"outcome", "voided",
		"order_id", order.ID,
		"status", string(order.Status),
		"payment_intent_id", intent.ID,
	)
	return nil
}

func (s *Service) createCheckedOutOrder(ctx context.Context, actor Actor, session contracts.CheckoutSessionObject, intentID string) error {
	order, err := s.orderFromSession(session, intentID)
	if err != nil {
		return err
	}
	event, err := s.orderEvent(domain.EventOrderPaymentAuthorized, order, "", actor, "", order.CreatedAt)
	if err != nil {
		return err
	}
	effects := ports.Effects{
		Ledger: []domain.LedgerEntry{ledgerEntry(order, domain.LedgerAuthorize, order.CreatedAt)},
		Outbox: []ports.OutboxEvent{event},
	}
	err = s.orders.Create(ctx, order, effects)
	if errors.Is(err, domain.ErrConflict) {
		return nil
	}
	return err
}

func (s *Service) orderFromSession(session contracts.CheckoutSessionObject, intentID string) (domain.Order, error) {
	meta := session.Metadata
	merchantID := strings.TrimSpace(meta[contracts.MetaMerchantID])
	influencerID := strings.TrimSpace(meta[contracts.MetaInfluencerID])
	if merchantID == "" || influencerID == "" {
		return domain.Order{}, fmt.Errorf("%w: checkout metadata is missing parties", domain.ErrValidation)
	}
	total, err := amountFromMeta(meta, contracts.MetaTotalAmount)
	if err != nil {
		return domain.Order{}, err
	}
	rate := s.cfg.CommissionRate
	if raw := strings.TrimSpace(meta[contracts.MetaCommissionRate]); raw != "" {
		if parsed, parseErr := decimal.NewFromString(raw); parseErr == nil {
			rate = parsed
		}
	}
	split, err := domain.SplitCommission(total, rate)
	if err != nil {
		return domain.Order{}, err
	}
	currency := strings.ToLower(meta[contracts.MetaCurrency])
	if currency == "" {
		currency = strings.ToLower(session.Currency)
	}
	if currency == "" {
		currency = s.cfg.Currency
	}
	orderID := strings.TrimSpace(meta[contracts.MetaOrderID])
	if _, err := uuid.Parse(orderID); err != nil {
		orderID = uuid.NewString()
	}
	now := s.nowFn()
	return domain.Order{
		ID:                orderID,
		MerchantID:        merchantID,
		InfluencerID:      influencerID,
		OfferID:           strings.TrimSpace(meta[contracts.MetaOfferID]),
		TotalAmount:       split.Total,
		NetAmount:         split.Net,
		CommissionRate:    split.Rate,
		Currency:          currency,
		PaymentIntentID:   intentID,
		CheckoutSessionID: session.ID,
		Status:            domain.StatusPaymentAuthorized,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// handleCheckoutExpired drops the unpaid order belonging to an abandoned
// checkout. Orders past pending are never touched.
func (s *Service) handleCheckoutExpired(ctx context.Context, session contracts.CheckoutSessionObject) error {
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("%w: checkout session id missing", domain.ErrValidation)
	}
	return s.withLock(ctx, "session:"+session.ID, func() error {
		order, err := s.orders.GetByCheckoutSessionID(ctx, session.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		event, err := s.orderEvent(domain.EventOrderCheckoutAbandoned, order, order.Status, SystemActor("webhook:"+session.ID), "checkout session expired", s.nowFn())
		if err != nil {
			return err
		}
		deleted, err := s.orders.DeletePendingBySession(ctx, session.ID, ports.Effects{Outbox: []ports.OutboxEvent{event}})
		if err != nil {
			return err
		}
		if deleted {
			s.logSuccess(ctx, "delete_expired_checkout", "order_id", order.ID, "session_id", session.ID)
		}
		return nil
	})
}

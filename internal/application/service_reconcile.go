package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/contracts"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

type reconcileOutcome int

const (
	outcomeVerified reconcileOutcome = iota
	outcomeRepaired
	outcomeRecovered
	outcomeReverted
	outcomeMismatched
)

// Reconcile compares every capture-relevant order with the processor and
// makes local state agree with it. The processor always wins. Orders are
// handled independently; a failure on one is counted and the pass goes on.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	report := ReconcileReport{StartedAt: s.nowFn()}
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, err := s.orders.ListCaptureCandidates(ctx, afterID, s.cfg.SweepBatchSize)
		if err != nil {
			return report, err
		}
		if len(batch) == 0 {
			break
		}
		for _, order := range batch {
			afterID = order.ID
			report.Scanned++
			outcome, err := s.reconcileOrder(ctx, order.ID)
			if err != nil {
				report.Failed++
				s.logFailure(ctx, "reconcile_order", err, "order_id", order.ID)
				continue
			}
			switch outcome {
			case outcomeVerified:
				report.Verified++
			case outcomeRepaired:
				report.Repaired++
			case outcomeRecovered:
				report.Recovered++
			case outcomeReverted:
				report.Reverted++
			case outcomeMismatched:
				report.Mismatched++
			}
		}
		if len(batch) < s.cfg.SweepBatchSize {
			break
		}
	}
	report.FinishedAt = s.nowFn()
	s.logSuccess(ctx, "reconcile",
		"scanned", report.Scanned,
		"verified", report.Verified,
		"repaired", report.Repaired,
		"recovered", report.Recovered,
		"reverted", report.Reverted,
		"mismatched", report.Mismatched,
		"failed", report.Failed,
	)
	return report, nil
}

func (s *Service) reconcileOrder(ctx context.Context, orderID string) (reconcileOutcome, error) {
	var outcome reconcileOutcome
	err := s.withOrderLock(ctx, orderID, func() error {
		order, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		outcome, err = s.reconcileLoaded(ctx, order)
		return err
	})
	return outcome, err
}

func (s *Service) reconcileLoaded(ctx context.Context, order domain.Order) (reconcileOutcome, error) {
	actor := SystemActor("reconcile:" + order.ID)
	claimsCapture := order.PaymentCaptured || order.Status.ImpliesCapture()

	if order.PaymentIntentID == "" {
		if !claimsCapture {
			return outcomeVerified, nil
		}
		return s.revertCapture(ctx, actor, order, domain.StatusPending, "payment record missing")
	}

	pctx, cancel := s.processorCtx(ctx)
	intent, err := s.processor.GetPaymentIntent(pctx, order.PaymentIntentID)
	cancel()
	if errors.Is(err, domain.ErrProcessorRecordAbsent) {
		if !claimsCapture {
			return outcomeVerified, nil
		}
		return s.revertCapture(ctx, actor, order, domain.StatusPending, "payment record missing")
	}
	if err != nil {
		return 0, err
	}

	expected := domain.ToMinorUnits(order.TotalAmount)
	if intent.Status == ports.IntentSucceeded {
		if intent.AmountReceivedMinor != expected {
			s.flagMismatch(ctx, order, intent, expected)
			return outcomeMismatched, nil
		}
		if !claimsCapture {
			if order.Status != domain.StatusPaymentAuthorized {
				return outcomeVerified, nil
			}
			if _, err := s.recordCapture(ctx, actor, order, intent, domain.StatusInProgress); err != nil {
				return 0, err
			}
			return outcomeRecovered, nil
		}
		return s.ensureCaptureRecords(ctx, actor, order, intent)
	}

	if !claimsCapture {
		return outcomeVerified, nil
	}
	target := domain.StatusPending
	if intent.Status == ports.IntentRequiresCapture {
		target = domain.StatusPaymentAuthorized
	}
	return s.revertCapture(ctx, actor, order, target, "processor reports "+intent.Status)
}

// ensureCaptureRecords repairs a confirmed capture whose local records are
// incomplete.
func (s *Service) ensureCaptureRecords(ctx context.Context, actor Actor, order domain.Order, intent ports.PaymentIntent) (reconcileOutcome, error) {
	if !order.PaymentCaptured {
		if _, err := s.recordCapture(ctx, actor, order, intent, ""); err != nil {
			return 0, err
		}
		return outcomeRepaired, nil
	}
	now := s.nowFn()
	repaired := false
	createdRevenue, err := s.revenues.EnsureForOrder(ctx, newRevenue(order, now))
	if err != nil {
		return 0, err
	}
	repaired = repaired || createdRevenue
	transferRef := intent.TransferRef
	if transferRef == "" {
		transferRef = intent.ID
	}
	createdTransfer, err := s.transfers.EnsureForOrder(ctx, domain.Transfer{
		ID:               uuid.NewString(),
		OrderID:          order.ID,
		InfluencerID:     order.InfluencerID,
		GrossAmount:      order.TotalAmount,
		PlatformFee:      order.Commission(),
		InfluencerAmount: order.NetAmount,
		Currency:         order.Currency,
		ProcessorRef:     transferRef,
		CreatedAt:        now,
	})
	if err != nil {
		return 0, err
	}
	repaired = repaired || createdTransfer
	if repaired {
		s.logger.WarnContext(ctx, "capture records repaired",
			"module", "application",
			"operation", "reconcile_order",
			"outcome", "repaired",
			"order_id", order.ID,
			"revenue_created", createdRevenue,
			"transfer_created", createdTransfer,
		)
		return outcomeRepaired, nil
	}
	return outcomeVerified, nil
}

func (s *Service) revertCapture(ctx context.Context, actor Actor, order domain.Order, to domain.OrderStatus, reason string) (reconcileOutcome, error) {
	now := s.nowFn()
	reverted := order
	reverted.PaymentCaptured = false
	reverted.CapturedAt = nil
	reverted.Status = to
	reverted.UpdatedAt = now

	event, err := s.orderEvent(domain.EventOrderCaptureReverted, reverted, order.Status, actor, reason, now)
	if err != nil {
		return 0, err
	}
	var ledger []domain.LedgerEntry
	if order.PaymentCaptured {
		ledger = append(ledger, ledgerEntry(order, domain.LedgerCaptureReverted, now))
	}
	_, err = s.orders.RevertCapture(ctx, ports.CaptureReversal{
		OrderID: order.ID,
		To:      to,
		At:      now,
		Effects: ports.Effects{
			Ledger: ledger,
			Outbox: []ports.OutboxEvent{event},
		},
	})
	if err != nil {
		return 0, err
	}
	s.logger.WarnContext(ctx, "local capture reverted to match processor",
		"module", "application",
		"operation", "reconcile_order",
		"outcome", "reverted",
		"order_id", order.ID,
		"from", string(order.Status),
		"to", string(to),
		"reason", reason,
	)
	return outcomeReverted, nil
}

func (s *Service) flagMismatch(ctx context.Context, order domain.Order, intent ports.PaymentIntent, expected int64) {
	s.logger.ErrorContext(ctx, "captured amount differs from order total",
		"module", "application",
		"operation", "reconcile_order",
		"outcome", "mismatch",
		"order_id", order.ID,
		"expected_minor", expected,
		"received_minor", intent.AmountReceivedMinor,
	)
	now := s.nowFn()
	event, err := s.newEvent(domain.EventReconciliationMismatch, order.ID, "reconcile:"+order.ID, contracts.ReconciliationMismatchPayload{
		OrderID:        order.ID,
		IntentID:       intent.ID,
		ExpectedMinor:  expected,
		ReceivedMinor:  intent.AmountReceivedMinor,
		ProcessorState: intent.Status,
		DetectedAt:     now.Format(time.RFC3339),
	}, now)
	if err != nil {
		s.logFailure(ctx, "encode_mismatch_event", err, "order_id", order.ID)
		return
	}
	if s.outbox != nil {
		if err := s.outbox.Enqueue(ctx, event); err != nil {
			s.logFailure(ctx, "enqueue_mismatch_event", err, "order_id", order.ID)
		}
	}
}

package application

import (
	"context"
	"errors"
	"time"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

const (
	SweepReconcile             = "reconcile"
	SweepExpireCheckouts       = "expire_checkouts"
	SweepExpireAuthorizations  = "expire_authorizations"
	SweepAutoConfirmDeliveries = "auto_confirm"
)

// SweepNames lists the periodic jobs in the order the worker runs them.
func SweepNames() []string {
	return []string{SweepReconcile, SweepExpireCheckouts, SweepExpireAuthorizations, SweepAutoConfirmDeliveries}
}

// RunSweep executes one named job.
func (s *Service) RunSweep(ctx context.Context, name string) (SweepReport, error) {
	switch name {
	case SweepReconcile:
		r, err := s.Reconcile(ctx)
		return SweepReport{
			Name:       name,
			Scanned:    r.Scanned,
			Applied:    r.Repaired + r.Recovered + r.Reverted,
			Skipped:    r.Verified + r.Mismatched,
			Failed:     r.Failed,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
		}, err
	case SweepExpireCheckouts:
		return s.ExpireAbandonedCheckouts(ctx)
	case SweepExpireAuthorizations:
		return s.ExpireStaleAuthorizations(ctx)
	case SweepAutoConfirmDeliveries:
		return s.AutoConfirmDeliveries(ctx)
	default:
		return SweepReport{}, domain.ErrNotFound
	}
}

// ExpireAbandonedCheckouts removes pending orders older than the checkout
// window. An order that somehow carries a payment reference is cancelled
// instead of deleted so its history survives.
func (s *Service) ExpireAbandonedCheckouts(ctx context.Context) (SweepReport, error) {
	return s.sweep(ctx, SweepExpireCheckouts, []domain.OrderStatus{domain.StatusPending}, s.cfg.CheckoutWindowHours,
		func(order domain.Order) (bool, error) {
			actor := SystemActor("sweep:" + SweepExpireCheckouts)
			if order.PaymentIntentID == "" {
				event, err := s.orderEvent(domain.EventOrderCheckoutAbandoned, order, order.Status, actor, "checkout window elapsed", s.nowFn())
				if err != nil {
					return false, err
				}
				return s.orders.DeletePending(ctx, order.ID, ports.Effects{Outbox: []ports.OutboxEvent{event}})
			}
			_, err := s.voidAndTransition(ctx, actor, order, domain.ActionExpire, cancelReasonAbandoned, "checkout window elapsed")
			return err == nil, err
		})
}

// ExpireStaleAuthorizations voids holds the influencer never answered
// before the processor would drop them.
func (s *Service) ExpireStaleAuthorizations(ctx context.Context) (SweepReport, error) {
	return s.sweep(ctx, SweepExpireAuthorizations, []domain.OrderStatus{domain.StatusPaymentAuthorized}, s.cfg.AuthorizationWindowHours,
		func(order domain.Order) (bool, error) {
			if order.PaymentCaptured {
				return false, nil
			}
			actor := SystemActor("sweep:" + SweepExpireAuthorizations)
			_, err := s.voidAndTransition(ctx, actor, order, domain.ActionExpire, cancelReasonAbandoned, "authorization window elapsed")
			return err == nil, err
		})
}

// AutoConfirmDeliveries completes delivered orders whose merchant did not
// answer within the confirmation window.
func (s *Service) AutoConfirmDeliveries(ctx context.Context) (SweepReport, error) {
	return s.sweep(ctx, SweepAutoConfirmDeliveries, []domain.OrderStatus{domain.StatusDelivered}, s.cfg.ConfirmationWindowHours,
		func(order domain.Order) (bool, error) {
			actor := SystemActor("sweep:" + SweepAutoConfirmDeliveries)
			_, err := s.transition(ctx, actor, order, domain.ActionAutoConfirm, "confirmation window elapsed", s.releaseEffects(order))
			return err == nil, err
		})
}

// sweep pages through orders in statuses whose window, measured from the
// last status change, has elapsed and applies fn to each under its order lock.
func (s *Service) sweep(ctx context.Context, name string, statuses []domain.OrderStatus, windowHours int, fn func(domain.Order) (bool, error)) (SweepReport, error) {
	now := s.nowFn()
	report := SweepReport{Name: name, StartedAt: now}
	cutoff := now.Add(-time.Duration(windowHours) * time.Hour)
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, err := s.orders.List(ctx, ports.OrderListQuery{
			Statuses:      statuses,
			UpdatedBefore: cutoff,
			AfterID:       afterID,
			Limit:         s.cfg.SweepBatchSize,
		})
		if err != nil {
			return report, err
		}
		for _, candidate := range batch {
			afterID = candidate.ID
			report.Scanned++
			applied, err := s.sweepOne(ctx, candidate.ID, statuses, windowHours, fn)
			switch {
			case err != nil:
				report.Failed++
				s.logFailure(ctx, "sweep_order", err, "sweep", name, "order_id", candidate.ID)
			case applied:
				report.Applied++
			default:
				report.Skipped++
			}
		}
		if len(batch) < s.cfg.SweepBatchSize {
			break
		}
	}
	report.FinishedAt = s.nowFn()
	s.logSuccess(ctx, "sweep", "sweep", name, "scanned", report.Scanned, "applied", report.Applied, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

func (s *Service) sweepOne(ctx context.Context, orderID string, statuses []domain.OrderStatus, windowHours int, fn func(domain.Order) (bool, error)) (bool, error) {
	applied := false
	err := s.withOrderLock(ctx, orderID, func() error {
		order, err := s.orders.GetByID(ctx, orderID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !statusIn(order.Status, statuses) {
			return nil
		}
		if !domain.IsExpired(order.UpdatedAt, windowHours, s.nowFn()) {
			return nil
		}
		applied, err = fn(order)
		return err
	})
	if errors.Is(err, domain.ErrOrderBusy) {
		return false, nil
	}
	return applied, err
}

func statusIn(status domain.OrderStatus, statuses []domain.OrderStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

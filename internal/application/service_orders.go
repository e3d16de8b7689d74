package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

var userActions = []domain.OrderAction{
	domain.ActionAccept,
	domain.ActionRefuse,
	domain.ActionDeliver,
	domain.ActionConfirm,
	domain.ActionCancel,
	domain.ActionContest,
}

// PerformAction applies a party's action to an order.
func (s *Service) PerformAction(ctx context.Context, actor Actor, input ActionInput) (domain.Order, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.Order{}, domain.ErrUnauthenticated
	}
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: orderId is required", domain.ErrValidation)
	}
	action, err := domain.ParseAction(strings.ToLower(strings.TrimSpace(input.Action)))
	if err != nil {
		return domain.Order{}, err
	}
	switch action {
	case domain.ActionAccept:
		return s.AcceptOrder(ctx, actor, orderID)
	case domain.ActionRefuse:
		return s.RefuseOrder(ctx, actor, orderID, input.Reason)
	case domain.ActionDeliver:
		return s.DeliverOrder(ctx, actor, orderID)
	case domain.ActionConfirm:
		return s.ConfirmOrder(ctx, actor, orderID)
	case domain.ActionCancel:
		return s.CancelOrder(ctx, actor, orderID, input.Reason)
	default:
		_, order, err := s.OpenContestation(ctx, actor, OpenContestationInput{OrderID: orderID, Reason: input.Reason, Evidence: input.Evidence})
		return order, err
	}
}

// AcceptOrder captures the held payment and starts the work. Nothing is
// stored unless the processor confirms the capture.
func (s *Service) AcceptOrder(ctx context.Context, actor Actor, orderID string) (domain.Order, error) {
	return s.actOnOrder(ctx, actor, orderID, domain.ActionAccept, func(order domain.Order) (domain.Order, error) {
		return s.captureOrder(ctx, actor, order, domain.StatusInProgress)
	})
}

// RefuseOrder voids the authorization; no revenue is ever created.
func (s *Service) RefuseOrder(ctx context.Context, actor Actor, orderID, reason string) (domain.Order, error) {
	return s.actOnOrder(ctx, actor, orderID, domain.ActionRefuse, func(order domain.Order) (domain.Order, error) {
		return s.voidAndTransition(ctx, actor, order, domain.ActionRefuse, cancelReasonRequested, reason)
	})
}

func (s *Service) DeliverOrder(ctx context.Context, actor Actor, orderID string) (domain.Order, error) {
	return s.actOnOrder(ctx, actor, orderID, domain.ActionDeliver, func(order domain.Order) (domain.Order, error) {
		return s.transition(ctx, actor, order, domain.ActionDeliver, "", ports.Effects{})
	})
}

// ConfirmOrder completes a delivered order and makes the revenue available.
func (s *Service) ConfirmOrder(ctx context.Context, actor Actor, orderID string) (domain.Order, error) {
	return s.actOnOrder(ctx, actor, orderID, domain.ActionConfirm, func(order domain.Order) (domain.Order, error) {
		return s.transition(ctx, actor, order, domain.ActionConfirm, "", s.releaseEffects(order))
	})
}

// CancelOrder is the merchant's pre-capture cancellation.
func (s *Service) CancelOrder(ctx context.Context, actor Actor, orderID, reason string) (domain.Order, error) {
	return s.actOnOrder(ctx, actor, orderID, domain.ActionCancel, func(order domain.Order) (domain.Order, error) {
		return s.voidAndTransition(ctx, actor, order, domain.ActionCancel, cancelReasonRequested, reason)
	})
}

// GetOrder returns the order with its timer state. A delivered order whose
// confirmation window has elapsed is auto-confirmed on read.
func (s *Service) GetOrder(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return OrderView{}, domain.ErrUnauthenticated
	}
	order, err := s.orders.GetByID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return OrderView{}, err
	}
	if actor.Role != domain.RoleAdmin && !order.IsParty(actor.SubjectID) {
		return OrderView{}, domain.ErrForbidden
	}
	if s.autoConfirmDue(order) {
		confirmed, err := s.autoConfirm(ctx, SystemActor(actor.RequestID), order.ID)
		switch {
		case err == nil:
			order = confirmed
		case errors.Is(err, domain.ErrStateConflict):
			if fresh, getErr := s.orders.GetByID(ctx, order.ID); getErr == nil {
				order = fresh
			}
		default:
			s.logFailure(ctx, "lazy_auto_confirm", err, "order_id", order.ID)
		}
	}
	return s.viewFor(actor, order), nil
}

func (s *Service) viewFor(actor Actor, order domain.Order) OrderView {
	view := OrderView{Order: order}
	now := s.nowFn()
	if order.Status == domain.StatusDelivered {
		at := domain.ExpiresAt(order.UpdatedAt, s.cfg.ConfirmationWindowHours)
		view.AutoConfirmAt = &at
	}
	if order.Status == domain.StatusDelivered || order.Status == domain.StatusCompleted {
		at := domain.ExpiresAt(order.UpdatedAt, s.cfg.ContestWindowHours)
		view.ContestableAt = &at
		view.CanContest = order.IsParty(actor.SubjectID) && domain.IsExpired(order.UpdatedAt, s.cfg.ContestWindowHours, now)
	}
	for _, action := range userActions {
		if authorizeAction(actor, order, action) != nil {
			continue
		}
		if _, err := domain.NextStatus(order.Status, action); err != nil {
			continue
		}
		if action == domain.ActionContest && !view.CanContest {
			continue
		}
		view.AvailableActions = append(view.AvailableActions, action)
	}
	return view
}

func (s *Service) autoConfirmDue(order domain.Order) bool {
	return order.Status == domain.StatusDelivered &&
		domain.IsExpired(order.UpdatedAt, s.cfg.ConfirmationWindowHours, s.nowFn())
}

// autoConfirm completes a delivered order the merchant left unanswered.
func (s *Service) autoConfirm(ctx context.Context, actor Actor, orderID string) (domain.Order, error) {
	var out domain.Order
	err := s.withOrderLock(ctx, orderID, func() error {
		order, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !s.autoConfirmDue(order) {
			return fmt.Errorf("%w: order is no longer awaiting confirmation", domain.ErrStateConflict)
		}
		out, err = s.transition(ctx, actor, order, domain.ActionAutoConfirm, "confirmation window elapsed", s.releaseEffects(order))
		return err
	})
	return out, err
}

// actOnOrder loads the order under its lock, checks the caller may perform
// the action and that the action is legal, then runs apply.
func (s *Service) actOnOrder(ctx context.Context, actor Actor, orderID string, action domain.OrderAction, apply func(domain.Order) (domain.Order, error)) (domain.Order, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.Order{}, domain.ErrUnauthenticated
	}
	var out domain.Order
	err := s.withOrderLock(ctx, orderID, func() error {
		order, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := authorizeAction(actor, order, action); err != nil {
			return err
		}
		if _, err := domain.NextStatus(order.Status, action); err != nil {
			return err
		}
		out, err = apply(order)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	return out, nil
}

// transition writes a guarded status change plus its effects and the
// lifecycle event.
func (s *Service) transition(ctx context.Context, actor Actor, order domain.Order, action domain.OrderAction, reason string, effects ports.Effects) (domain.Order, error) {
	to, err := domain.NextStatus(order.Status, action)
	if err != nil {
		return domain.Order{}, err
	}
	now := s.nowFn()
	next := order
	next.ApplyStatus(to, now)

	event, err := s.orderEvent(domain.EventForStatus(to), next, order.Status, actor, reason, now)
	if err != nil {
		return domain.Order{}, err
	}
	effects.Outbox = append(effects.Outbox, event)
	updated, err := s.orders.Transition(ctx, ports.OrderTransition{
		OrderID:         order.ID,
		From:            []domain.OrderStatus{order.Status},
		To:              to,
		At:              now,
		PaymentIntentID: next.PaymentIntentID,
		AdminDecision:   next.AdminDecision,
		Effects:         effects,
	})
	if err != nil {
		s.logFailure(ctx, "order_transition", err, "order_id", order.ID, "action", string(action), "from", string(order.Status), "to", string(to))
		return domain.Order{}, err
	}
	s.logSuccess(ctx, "order_transition", "order_id", order.ID, "action", string(action), "from", string(order.Status), "to", string(to), "actor", actor.SubjectID)
	return updated, nil
}

// releaseEffects makes the revenue withdrawable and settles the escrow.
func (s *Service) releaseEffects(order domain.Order) ports.Effects {
	return ports.Effects{
		Ledger: []domain.LedgerEntry{ledgerEntry(order, domain.LedgerRelease, s.nowFn())},
		Revenue: &ports.RevenueStatusChange{
			From: []domain.RevenueStatus{domain.RevenuePending, domain.RevenueOnHold},
			To:   domain.RevenueAvailable,
		},
	}
}

func authorizeAction(actor Actor, order domain.Order, action domain.OrderAction) error {
	switch action {
	case domain.ActionAccept, domain.ActionRefuse, domain.ActionDeliver:
		if actor.SubjectID != order.InfluencerID {
			return fmt.Errorf("%w: only the order's influencer can %s", domain.ErrForbidden, action)
		}
	case domain.ActionConfirm, domain.ActionCancel:
		if actor.SubjectID != order.MerchantID {
			return fmt.Errorf("%w: only the order's merchant can %s", domain.ErrForbidden, action)
		}
	case domain.ActionContest:
		if !order.IsParty(actor.SubjectID) {
			return fmt.Errorf("%w: only parties to the order can contest", domain.ErrForbidden)
		}
	default:
		if actor.Role != domain.RoleSystem && actor.Role != domain.RoleAdmin {
			return domain.ErrForbidden
		}
	}
	return nil
}

// withOrderLock serializes processor-touching work on one order across
// processes. The status guard in the repository still decides the outcome.
func (s *Service) withOrderLock(ctx context.Context, orderID string, fn func() error) error {
	return s.withLock(ctx, "order:"+orderID, fn)
}

func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	release, err := s.locker.Acquire(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.logger.WarnContext(ctx, "lock release failed",
				"module", "application",
				"operation", "release_lock",
				"outcome", "failure",
				"lock_key", key,
				"error", err,
			)
		}
	}()
	return fn()
}

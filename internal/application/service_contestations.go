package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

// OpenContestation lets either party dispute a delivered or completed order
// once the contest window since its last change has elapsed. The revenue is
// frozen until an administrator decides.
func (s *Service) OpenContestation(ctx context.Context, actor Actor, input OpenContestationInput) (domain.Contestation, domain.Order, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.Contestation{}, domain.Order{}, domain.ErrUnauthenticated
	}
	if err := domain.ValidateContestReason(input.Reason, input.Evidence); err != nil {
		return domain.Contestation{}, domain.Order{}, err
	}
	orderID := strings.TrimSpace(input.OrderID)

	var (
		contestation domain.Contestation
		updated      domain.Order
	)
	err := s.withOrderLock(ctx, orderID, func() error {
		order, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := authorizeAction(actor, order, domain.ActionContest); err != nil {
			return err
		}
		if _, err := domain.NextStatus(order.Status, domain.ActionContest); err != nil {
			return err
		}
		if !domain.IsExpired(order.UpdatedAt, s.cfg.ContestWindowHours, s.nowFn()) {
			return domain.ErrContestWindowOpen
		}
		if _, err := s.contestations.GetPendingByOrderID(ctx, order.ID); err == nil {
			return domain.ErrContestationPending
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		role := domain.RoleMerchant
		if actor.SubjectID == order.InfluencerID {
			role = domain.RoleInfluencer
		}
		now := s.nowFn()
		contestation = domain.Contestation{
			ID:           uuid.NewString(),
			OrderID:      order.ID,
			OpenedBy:     actor.SubjectID,
			OpenedByRole: role,
			Reason:       strings.TrimSpace(input.Reason),
			Evidence:     strings.TrimSpace(input.Evidence),
			Status:       domain.ContestationPending,
			CreatedAt:    now,
		}
		updated, err = s.transition(ctx, actor, order, domain.ActionContest, contestation.Reason, ports.Effects{
			Contestation: &contestation,
			Revenue: &ports.RevenueStatusChange{
				From: []domain.RevenueStatus{domain.RevenuePending, domain.RevenueAvailable},
				To:   domain.RevenueOnHold,
			},
		})
		if errors.Is(err, domain.ErrConflict) {
			return domain.ErrContestationPending
		}
		return err
	})
	if err != nil {
		return domain.Contestation{}, domain.Order{}, err
	}
	return contestation, updated, nil
}

func (s *Service) ListPendingContestations(ctx context.Context, actor Actor, limit int) ([]domain.Contestation, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.contestations.ListPending(ctx, limit)
}

// ResolveContestation records an administrator's ruling. The decision is
// final: both the contestation and the order leave their disputed state in
// one write and cannot be decided again.
func (s *Service) ResolveContestation(ctx context.Context, actor Actor, input ResolveContestationInput) (domain.Contestation, domain.Order, error) {
	if actor.Role != domain.RoleAdmin || strings.TrimSpace(actor.SubjectID) == "" {
		return domain.Contestation{}, domain.Order{}, fmt.Errorf("%w: only administrators can decide contestations", domain.ErrForbidden)
	}
	decision, err := domain.ParseDecision(input.Decision)
	if err != nil {
		return domain.Contestation{}, domain.Order{}, err
	}
	contestation, err := s.contestations.GetByID(ctx, strings.TrimSpace(input.ContestationID))
	if err != nil {
		return domain.Contestation{}, domain.Order{}, err
	}
	if contestation.Status != domain.ContestationPending {
		return domain.Contestation{}, domain.Order{}, domain.ErrContestationDecided
	}

	var (
		updated   domain.Order
		decidedAt time.Time
	)
	err = s.withOrderLock(ctx, contestation.OrderID, func() error {
		order, err := s.orders.GetByID(ctx, contestation.OrderID)
		if err != nil {
			return err
		}
		now := s.nowFn()
		decidedAt = now
		status := contestation.OutcomeFor(decision)
		note := strings.TrimSpace(input.Note)
		order.AdminDecision = &domain.AdminDecision{
			Decision:  string(decision),
			DecidedBy: actor.SubjectID,
			DecidedAt: now,
		}

		effects := ports.Effects{
			Decision: &ports.ContestationDecisionRecord{
				ContestationID: contestation.ID,
				Status:         status,
				Decision:       decision,
				Note:           note,
				DecidedBy:      actor.SubjectID,
				DecidedAt:      now,
			},
		}
		heldRevenue := []domain.RevenueStatus{domain.RevenueOnHold, domain.RevenuePending, domain.RevenueAvailable}
		if decision == domain.DecisionRelease {
			// A completed order was already released when it was confirmed.
			if order.CompletedAt == nil {
				effects.Ledger = []domain.LedgerEntry{ledgerEntry(order, domain.LedgerRelease, now)}
			}
			effects.Revenue = &ports.RevenueStatusChange{From: heldRevenue, To: domain.RevenueAvailable}
		} else {
			effects.Ledger = []domain.LedgerEntry{ledgerEntry(order, domain.LedgerRefund, now)}
			effects.Revenue = &ports.RevenueStatusChange{From: heldRevenue, To: domain.RevenueReversed}
			reversed := order
			reversed.ApplyStatus(domain.StatusCancelled, now)
			event, err := s.orderEvent(domain.EventOrderReversed, reversed, order.Status, actor, note, now)
			if err != nil {
				return err
			}
			effects.Outbox = []ports.OutboxEvent{event}
		}

		updated, err = s.transition(ctx, actor, order, decision.OrderAction(), note, effects)
		return err
	})
	if err != nil {
		return domain.Contestation{}, domain.Order{}, err
	}

	contestation.Status = contestation.OutcomeFor(decision)
	contestation.Decision = decision
	contestation.DecisionNote = strings.TrimSpace(input.Note)
	contestation.DecidedBy = actor.SubjectID
	contestation.DecidedAt = &decidedAt
	s.logSuccess(ctx, "resolve_contestation", "contestation_id", contestation.ID, "order_id", updated.ID, "decision", string(decision))
	return contestation, updated, nil
}

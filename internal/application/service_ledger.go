package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/contracts"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

const (
	ledgerScopeOrder      = "order"
	ledgerScopeInfluencer = "influencer"
)

// OrderLedger returns the escrow movements of one order.
func (s *Service) OrderLedger(ctx context.Context, actor Actor, orderID string) (domain.EscrowBalance, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowBalance{}, domain.ErrUnauthenticated
	}
	order, err := s.orders.GetByID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.EscrowBalance{}, err
	}
	if actor.Role != domain.RoleAdmin && !order.IsParty(actor.SubjectID) {
		return domain.EscrowBalance{}, domain.ErrForbidden
	}
	entries, err := s.ledger.ListByOrderID(ctx, order.ID)
	if err != nil {
		return domain.EscrowBalance{}, err
	}
	return domain.SummarizeLedger(ledgerScopeOrder, order.ID, entries, s.nowFn()), nil
}

// InfluencerLedger returns every escrow movement touching an influencer.
func (s *Service) InfluencerLedger(ctx context.Context, actor Actor, influencerID string) (domain.EscrowBalance, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowBalance{}, domain.ErrUnauthenticated
	}
	influencerID = strings.TrimSpace(influencerID)
	if actor.Role != domain.RoleAdmin && actor.SubjectID != influencerID {
		return domain.EscrowBalance{}, domain.ErrForbidden
	}
	entries, err := s.ledger.ListByInfluencerID(ctx, influencerID)
	if err != nil {
		return domain.EscrowBalance{}, err
	}
	return domain.SummarizeLedger(ledgerScopeInfluencer, influencerID, entries, s.nowFn()), nil
}

// RequestWithdrawal pays out available revenues to the influencer's
// connected account. Revenues are taken whole, oldest first, up to the
// requested amount; a zero amount withdraws everything available.
func (s *Service) RequestWithdrawal(ctx context.Context, actor Actor, input WithdrawalInput) (domain.Payout, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.Payout{}, domain.ErrUnauthenticated
	}
	if actor.Role != domain.RoleInfluencer {
		return domain.Payout{}, fmt.Errorf("%w: only influencers can withdraw", domain.ErrForbidden)
	}
	if input.Amount.IsNegative() {
		return domain.Payout{}, domain.ErrAmountOutOfRange
	}

	var payout domain.Payout
	err := s.withLock(ctx, "withdraw:"+actor.SubjectID, func() error {
		available, err := s.revenues.ListByInfluencer(ctx, actor.SubjectID, domain.RevenueAvailable)
		if err != nil {
			return err
		}
		if input.Amount.IsPositive() && sumRevenues(available).LessThan(input.Amount) {
			return domain.ErrInsufficientFunds
		}
		selected, total := selectRevenues(available, input.Amount)
		if len(selected) == 0 {
			return domain.ErrInsufficientFunds
		}

		account, err := s.profiles.GetInfluencerAccount(ctx, actor.SubjectID)
		if err != nil {
			return err
		}
		if strings.TrimSpace(account.ConnectedAccountID) == "" {
			return domain.ErrPayoutDestinationMissing
		}

		ids := make([]string, 0, len(selected))
		for _, r := range selected {
			ids = append(ids, r.ID)
		}
		currency := selected[0].Currency
		payoutID := uuid.NewString()
		now := s.nowFn()
		event, err := s.newEvent(domain.EventPayoutRequested, actor.SubjectID, actor.RequestID, contracts.PayoutRequestedPayload{
			PayoutID:     payoutID,
			InfluencerID: actor.SubjectID,
			Amount:       total,
			Currency:     currency,
			RevenueIDs:   ids,
			RequestedAt:  now.Format(time.RFC3339),
		}, now)
		if err != nil {
			return err
		}

		pctx, cancel := s.processorCtx(ctx)
		created, err := s.processor.CreatePayout(pctx, ports.PayoutParams{
			ConnectedAccountID: account.ConnectedAccountID,
			AmountMinor:        domain.ToMinorUnits(total),
			Currency:           currency,
			IdempotencyKey:     payoutIdempotencyKey(ids),
			Metadata: map[string]string{
				"payout_id":     payoutID,
				"influencer_id": actor.SubjectID,
			},
		})
		cancel()
		if err != nil {
			s.logFailure(ctx, "create_payout", err, "influencer_id", actor.SubjectID)
			return err
		}

		entries := make([]domain.LedgerEntry, 0, len(selected))
		for _, r := range selected {
			entries = append(entries, domain.LedgerEntry{
				EntryID:      uuid.NewString(),
				OrderID:      r.OrderID,
				InfluencerID: r.InfluencerID,
				EntryType:    domain.LedgerWithdraw,
				Amount:       r.Amount,
				OccurredAt:   now,
			})
		}
		if err := s.revenues.MarkWithdrawn(ctx, ids, payoutID, entries, event, now); err != nil {
			s.logFailure(ctx, "mark_revenues_withdrawn", err, "influencer_id", actor.SubjectID, "payout_id", payoutID, "processor_payout_id", created.ID)
			return err
		}
		payout = domain.Payout{
			ID:           payoutID,
			InfluencerID: actor.SubjectID,
			Amount:       total,
			Currency:     currency,
			Status:       created.Status,
			RevenueIDs:   ids,
			ArrivalDate:  created.ArrivalDate,
			CreatedAt:    now,
		}
		return nil
	})
	if err != nil {
		return domain.Payout{}, err
	}
	s.logSuccess(ctx, "request_withdrawal", "influencer_id", actor.SubjectID, "payout_id", payout.ID, "amount", payout.Amount.StringFixed(2))
	return payout, nil
}

// payoutIdempotencyKey is stable for a set of revenues regardless of order
// and stays within the processor's key length limit.
func payoutIdempotencyKey(revenueIDs []string) string {
	sorted := append([]string(nil), revenueIDs...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return "payout-" + hex.EncodeToString(sum[:])
}

// selectRevenues takes revenues in the given order while they fit under
// limit. Only revenues sharing the first one's currency are considered.
func selectRevenues(revenues []domain.Revenue, limit decimal.Decimal) ([]domain.Revenue, decimal.Decimal) {
	total := decimal.Zero
	var selected []domain.Revenue
	for _, r := range revenues {
		if len(selected) > 0 && r.Currency != selected[0].Currency {
			continue
		}
		next := total.Add(r.Amount)
		if limit.IsPositive() && next.GreaterThan(limit) {
			continue
		}
		selected = append(selected, r)
		total = next
	}
	return selected, total
}

func sumRevenues(revenues []domain.Revenue) decimal.Decimal {
	total := decimal.Zero
	for _, r := range revenues {
		total = total.Add(r.Amount)
	}
	return total
}

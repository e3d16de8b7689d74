package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

type RevenueRepository struct {
	s *Store
}

func (r *RevenueRepository) GetByOrderID(_ context.Context, orderID string) (domain.Revenue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.revenues[orderID]
	if !ok {
		return domain.Revenue{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *RevenueRepository) EnsureForOrder(_ context.Context, revenue domain.Revenue) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.revenues[revenue.OrderID]; ok {
		return false, nil
	}
	r.s.revenues[revenue.OrderID] = revenue
	return true, nil
}

func (r *RevenueRepository) ListByInfluencer(_ context.Context, influencerID string, status domain.RevenueStatus) ([]domain.Revenue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Revenue{}
	for _, row := range r.s.revenues {
		if row.InfluencerID != influencerID {
			continue
		}
		if status != "" && row.Status != status {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *RevenueRepository) MarkWithdrawn(_ context.Context, revenueIDs []string, payoutID string, entries []domain.LedgerEntry, event ports.OutboxEvent, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byID := map[string]string{}
	for orderID, row := range r.s.revenues {
		byID[row.ID] = orderID
	}
	for _, id := range revenueIDs {
		orderID, ok := byID[id]
		if !ok {
			return domain.ErrNotFound
		}
		if r.s.revenues[orderID].Status != domain.RevenueAvailable {
			return fmt.Errorf("%w: revenue %s is no longer available", domain.ErrStateConflict, id)
		}
	}
	if _, ok := r.s.outboxIndex[event.EventID]; ok {
		return domain.ErrConflict
	}
	for _, id := range revenueIDs {
		orderID := byID[id]
		row := r.s.revenues[orderID]
		row.Status = domain.RevenueWithdrawn
		row.PayoutID = payoutID
		row.UpdatedAt = at
		r.s.revenues[orderID] = row
	}
	r.s.ledger = append(r.s.ledger, entries...)
	r.s.enqueue(event)
	return nil
}

type TransferRepository struct {
	s *Store
}

func (r *TransferRepository) GetByOrderID(_ context.Context, orderID string) (domain.Transfer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.transfers[orderID]
	if !ok {
		return domain.Transfer{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *TransferRepository) EnsureForOrder(_ context.Context, transfer domain.Transfer) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.transfers[transfer.OrderID]; ok {
		return false, nil
	}
	r.s.transfers[transfer.OrderID] = transfer
	return true, nil
}

type PaymentLogRepository struct {
	s *Store
}

func (r *PaymentLogRepository) Append(_ context.Context, log domain.PaymentLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	log.Payload = append([]byte(nil), log.Payload...)
	r.s.paymentLogs = append(r.s.paymentLogs, log)
	return nil
}

func (r *PaymentLogRepository) MarkProcessed(_ context.Context, logID string, at time.Time, processingErr string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.paymentLogs {
		if r.s.paymentLogs[i].ID != logID {
			continue
		}
		processedAt := at
		r.s.paymentLogs[i].Processed = processingErr == ""
		r.s.paymentLogs[i].ProcessingError = processingErr
		r.s.paymentLogs[i].ProcessedAt = &processedAt
		return nil
	}
	return domain.ErrNotFound
}

func (r *PaymentLogRepository) HasProcessed(_ context.Context, eventID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range r.s.paymentLogs {
		if row.EventID == eventID && row.Processed {
			return true, nil
		}
	}
	return false, nil
}

// All returns every delivery in arrival order.
func (r *PaymentLogRepository) All() []domain.PaymentLog {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.PaymentLog(nil), r.s.paymentLogs...)
}

type ContestationRepository struct {
	s *Store
}

func (r *ContestationRepository) GetByID(_ context.Context, contestationID string) (domain.Contestation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.contestations[contestationID]
	if !ok {
		return domain.Contestation{}, domain.ErrContestationNotFound
	}
	return row, nil
}

func (r *ContestationRepository) GetPendingByOrderID(_ context.Context, orderID string) (domain.Contestation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range r.s.contestations {
		if row.OrderID == orderID && row.Status == domain.ContestationPending {
			return row, nil
		}
	}
	return domain.Contestation{}, domain.ErrContestationNotFound
}

func (r *ContestationRepository) ListPending(_ context.Context, limit int) ([]domain.Contestation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Contestation{}
	for _, row := range r.s.contestations {
		if row.Status == domain.ContestationPending {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type LedgerRepository struct {
	s *Store
}

func (r *LedgerRepository) ListByOrderID(_ context.Context, orderID string) ([]domain.LedgerEntry, error) {
	return r.filter(func(e domain.LedgerEntry) bool { return e.OrderID == orderID }), nil
}

func (r *LedgerRepository) ListByInfluencerID(_ context.Context, influencerID string) ([]domain.LedgerEntry, error) {
	return r.filter(func(e domain.LedgerEntry) bool { return e.InfluencerID == influencerID }), nil
}

func (r *LedgerRepository) filter(keep func(domain.LedgerEntry) bool) []domain.LedgerEntry {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.LedgerEntry{}
	for _, e := range r.s.ledger {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out
}

package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

// Store keeps every table behind one mutex so an order write and its
// effects land together, like a single database transaction.
type Store struct {
	mu sync.Mutex

	orders        map[string]domain.Order
	sessions      map[string]string
	revenues      map[string]domain.Revenue
	transfers     map[string]domain.Transfer
	paymentLogs   []domain.PaymentLog
	contestations map[string]domain.Contestation
	ledger        []domain.LedgerEntry
	outbox        []ports.OutboxRecord
	outboxIndex   map[uuid.UUID]int

	offers      map[string]ports.Offer
	influencers map[string]ports.InfluencerAccount
	merchants   map[string]ports.Merchant
}

type Repositories struct {
	Store         *Store
	Orders        *OrderRepository
	Revenues      *RevenueRepository
	Transfers     *TransferRepository
	PaymentLogs   *PaymentLogRepository
	Contestations *ContestationRepository
	Ledger        *LedgerRepository
	Outbox        *OutboxRepository
	Profiles      *ProfileDirectory
}

func NewRepositories() *Repositories {
	store := &Store{
		orders:        map[string]domain.Order{},
		sessions:      map[string]string{},
		revenues:      map[string]domain.Revenue{},
		transfers:     map[string]domain.Transfer{},
		contestations: map[string]domain.Contestation{},
		outboxIndex:   map[uuid.UUID]int{},
		offers:        map[string]ports.Offer{},
		influencers:   map[string]ports.InfluencerAccount{},
		merchants:     map[string]ports.Merchant{},
	}
	return &Repositories{
		Store:         store,
		Orders:        &OrderRepository{s: store},
		Revenues:      &RevenueRepository{s: store},
		Transfers:     &TransferRepository{s: store},
		PaymentLogs:   &PaymentLogRepository{s: store},
		Contestations: &ContestationRepository{s: store},
		Ledger:        &LedgerRepository{s: store},
		Outbox:        &OutboxRepository{s: store},
		Profiles:      &ProfileDirectory{s: store},
	}
}

// checkEffects reports conflicts before anything is written. Callers hold mu.
func (s *Store) checkEffects(orderID string, effects ports.Effects) error {
	if c := effects.Contestation; c != nil {
		for _, existing := range s.contestations {
			if existing.OrderID == orderID && existing.Status == domain.ContestationPending {
				return domain.ErrConflict
			}
		}
	}
	if d := effects.Decision; d != nil {
		existing, ok := s.contestations[d.ContestationID]
		if !ok {
			return domain.ErrContestationNotFound
		}
		if existing.Status != domain.ContestationPending {
			return domain.ErrContestationDecided
		}
	}
	for _, event := range effects.Outbox {
		if _, ok := s.outboxIndex[event.EventID]; ok {
			return domain.ErrConflict
		}
	}
	return nil
}

// applyEffects writes effects already validated by checkEffects. Callers hold mu.
func (s *Store) applyEffects(orderID string, effects ports.Effects) {
	s.ledger = append(s.ledger, effects.Ledger...)
	for _, event := range effects.Outbox {
		s.enqueue(event)
	}
	if change := effects.Revenue; change != nil {
		if revenue, ok := s.revenues[orderID]; ok && revenueStatusIn(revenue.Status, change.From) {
			revenue.Status = change.To
			s.revenues[orderID] = revenue
		}
	}
	if c := effects.Contestation; c != nil {
		s.contestations[c.ID] = *c
	}
	if d := effects.Decision; d != nil {
		existing := s.contestations[d.ContestationID]
		at := d.DecidedAt
		existing.Status = d.Status
		existing.Decision = d.Decision
		existing.DecisionNote = d.Note
		existing.DecidedBy = d.DecidedBy
		existing.DecidedAt = &at
		s.contestations[d.ContestationID] = existing
	}
}

func (s *Store) enqueue(event ports.OutboxEvent) {
	s.outboxIndex[event.EventID] = len(s.outbox)
	s.outbox = append(s.outbox, ports.OutboxRecord{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      append([]byte(nil), event.Payload...),
		CreatedAt:    event.OccurredAt,
	})
}

func revenueStatusIn(status domain.RevenueStatus, set []domain.RevenueStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

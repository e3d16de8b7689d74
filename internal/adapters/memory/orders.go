package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

type OrderRepository struct {
	s *Store
}

// Seed stores an order as given, including a legacy status spelling.
func (r *OrderRepository) Seed(order domain.Order) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[order.ID] = order
	if order.CheckoutSessionID != "" {
		r.s.sessions[order.CheckoutSessionID] = order.ID
	}
}

// RawStatus returns the status exactly as stored.
func (r *OrderRepository) RawStatus(orderID string) string {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return string(r.s.orders[orderID].Status)
}

func (r *OrderRepository) Create(_ context.Context, order domain.Order, effects ports.Effects) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[order.ID]; ok {
		return domain.ErrConflict
	}
	if order.CheckoutSessionID != "" {
		if _, ok := r.s.sessions[order.CheckoutSessionID]; ok {
			return domain.ErrConflict
		}
	}
	if err := r.s.checkEffects(order.ID, effects); err != nil {
		return err
	}
	r.s.orders[order.ID] = order
	if order.CheckoutSessionID != "" {
		r.s.sessions[order.CheckoutSessionID] = order.ID
	}
	r.s.applyEffects(order.ID, effects)
	return nil
}

func (r *OrderRepository) GetByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return canonical(order), nil
}

func (r *OrderRepository) GetByCheckoutSessionID(_ context.Context, sessionID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.sessions[sessionID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order, ok := r.s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return canonical(order), nil
}

func (r *OrderRepository) Transition(_ context.Context, t ports.OrderTransition) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[t.OrderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if !storedIn(stored.Status, t.From) {
		return domain.Order{}, domain.ErrInvalidTransition
	}
	if err := r.s.checkEffects(t.OrderID, t.Effects); err != nil {
		return domain.Order{}, err
	}
	order := canonical(stored)
	order.ApplyStatus(t.To, t.At)
	if t.PaymentIntentID != "" {
		order.PaymentIntentID = t.PaymentIntentID
	}
	if t.AdminDecision != nil {
		decision := *t.AdminDecision
		order.AdminDecision = &decision
	}
	r.s.orders[order.ID] = order
	r.s.applyEffects(order.ID, t.Effects)
	return order, nil
}

func (r *OrderRepository) AttachPaymentIntent(_ context.Context, a ports.IntentAttachment) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[a.OrderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if stored.PaymentCaptured || (stored.PaymentIntentID != "" && stored.PaymentIntentID != a.PaymentIntentID) {
		return domain.Order{}, domain.ErrInvalidTransition
	}
	if err := r.s.checkEffects(a.OrderID, a.Effects); err != nil {
		return domain.Order{}, err
	}
	order := canonical(stored)
	order.PaymentIntentID = a.PaymentIntentID
	order.UpdatedAt = a.At
	r.s.orders[order.ID] = order
	r.s.applyEffects(order.ID, a.Effects)
	return order, nil
}

func (r *OrderRepository) RecordCapture(_ context.Context, c ports.CaptureRecord) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[c.OrderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if stored.PaymentCaptured {
		return domain.Order{}, domain.ErrPaymentAlreadyCaptured
	}
	if len(c.From) > 0 && !storedIn(stored.Status, c.From) {
		return domain.Order{}, domain.ErrInvalidTransition
	}
	if err := r.s.checkEffects(c.OrderID, c.Effects); err != nil {
		return domain.Order{}, err
	}
	order := canonical(stored)
	at := c.CapturedAt
	order.PaymentCaptured = true
	order.CapturedAt = &at
	if c.To != "" {
		order.ApplyStatus(c.To, at)
	} else {
		order.UpdatedAt = at
	}
	r.s.orders[order.ID] = order
	if _, ok := r.s.revenues[order.ID]; !ok {
		r.s.revenues[order.ID] = c.Revenue
	}
	if _, ok := r.s.transfers[order.ID]; !ok {
		r.s.transfers[order.ID] = c.Transfer
	}
	r.s.applyEffects(order.ID, c.Effects)
	return order, nil
}

func (r *OrderRepository) RevertCapture(_ context.Context, rev ports.CaptureReversal) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[rev.OrderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err := r.s.checkEffects(rev.OrderID, rev.Effects); err != nil {
		return domain.Order{}, err
	}
	order := canonical(stored)
	order.PaymentCaptured = false
	order.CapturedAt = nil
	order.Status = rev.To
	order.UpdatedAt = rev.At
	r.s.orders[order.ID] = order
	if revenue, ok := r.s.revenues[order.ID]; ok && revenue.Status != domain.RevenueWithdrawn {
		delete(r.s.revenues, order.ID)
	}
	delete(r.s.transfers, order.ID)
	r.s.applyEffects(order.ID, rev.Effects)
	return order, nil
}

func (r *OrderRepository) DeletePending(_ context.Context, orderID string, effects ports.Effects) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.deletePendingLocked(orderID, effects)
}

func (r *OrderRepository) DeletePendingBySession(_ context.Context, sessionID string, effects ports.Effects) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	return r.deletePendingLocked(id, effects)
}

func (r *OrderRepository) deletePendingLocked(orderID string, effects ports.Effects) (bool, error) {
	stored, ok := r.s.orders[orderID]
	if !ok || stored.PaymentCaptured || !storedIn(stored.Status, []domain.OrderStatus{domain.StatusPending}) {
		return false, nil
	}
	if err := r.s.checkEffects(orderID, effects); err != nil {
		return false, err
	}
	delete(r.s.orders, orderID)
	if stored.CheckoutSessionID != "" {
		delete(r.s.sessions, stored.CheckoutSessionID)
	}
	r.s.applyEffects(orderID, effects)
	return true, nil
}

func (r *OrderRepository) List(_ context.Context, q ports.OrderListQuery) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Order{}
	for _, stored := range r.s.orders {
		if len(q.Statuses) > 0 && !storedIn(stored.Status, q.Statuses) {
			continue
		}
		if !q.UpdatedBefore.IsZero() && !stored.UpdatedAt.Before(q.UpdatedBefore) {
			continue
		}
		if q.AfterID != "" && stored.ID <= q.AfterID {
			continue
		}
		out = append(out, canonical(stored))
	}
	return page(out, q.Limit), nil
}

func (r *OrderRepository) ListCaptureCandidates(_ context.Context, afterID string, limit int) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Order{}
	for _, stored := range r.s.orders {
		if afterID != "" && stored.ID <= afterID {
			continue
		}
		order := canonical(stored)
		authorizedWithIntent := order.Status == domain.StatusPaymentAuthorized && order.PaymentIntentID != ""
		if order.PaymentCaptured || order.Status.ImpliesCapture() || authorizedWithIntent {
			out = append(out, order)
		}
	}
	return page(out, limit), nil
}

func page(orders []domain.Order, limit int) []domain.Order {
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders
}

// canonical folds a legacy stored status onto its canonical value.
func canonical(order domain.Order) domain.Order {
	if status, ok := domain.ParseStatus(string(order.Status)); ok {
		order.Status = status
	}
	return order
}

func storedIn(stored domain.OrderStatus, from []domain.OrderStatus) bool {
	raw := strings.TrimSpace(string(stored))
	for _, alias := range domain.StoredAliases(from...) {
		if raw == alias {
			return true
		}
	}
	return false
}

package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

type orderRepository struct {
	db *gorm.DB
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order, effects ports.Effects) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := toOrderModel(order)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		return applyEffects(tx, order.ID, effects, order.CreatedAt)
	})
}

func (r *orderRepository) GetByID(ctx context.Context, orderID string) (domain.Order, error) {
	var row orderModel
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	return toDomainOrder(row), nil
}

func (r *orderRepository) GetByCheckoutSessionID(ctx context.Context, sessionID string) (domain.Order, error) {
	var row orderModel
	if err := r.db.WithContext(ctx).Where("stripe_checkout_session_id = ?", sessionID).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	return toDomainOrder(row), nil
}

func (r *orderRepository) Transition(ctx context.Context, t ports.OrderTransition) (domain.Order, error) {
	var result domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := statusColumns(t.To, t.At)
		if t.PaymentIntentID != "" {
			updates["stripe_payment_intent_id"] = t.PaymentIntentID
		}
		if d := t.AdminDecision; d != nil {
			updates["admin_decision"] = d.Decision
			updates["admin_decided_by"] = d.DecidedBy
			updates["admin_decided_at"] = d.DecidedAt
		}
		res := tx.Model(&orderModel{}).
			Where("id = ?", t.OrderID).
			Where("status IN ?", domain.StoredAliases(t.From...)).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrGuarded(tx, t.OrderID)
		}
		if err := applyEffects(tx, t.OrderID, t.Effects, t.At); err != nil {
			return err
		}
		return reload(tx, t.OrderID, &result)
	})
	return result, err
}

func (r *orderRepository) AttachPaymentIntent(ctx context.Context, a ports.IntentAttachment) (domain.Order, error) {
	var result domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&orderModel{}).
			Where("id = ?", a.OrderID).
			Where("payment_captured = ?", false).
			Where("COALESCE(stripe_payment_intent_id, '') IN ?", []string{"", a.PaymentIntentID}).
			Updates(map[string]any{
				"stripe_payment_intent_id": a.PaymentIntentID,
				"updated_at":               a.At,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrGuarded(tx, a.OrderID)
		}
		if err := applyEffects(tx, a.OrderID, a.Effects, a.At); err != nil {
			return err
		}
		return reload(tx, a.OrderID, &result)
	})
	return result, err
}

func (r *orderRepository) RecordCapture(ctx context.Context, c ports.CaptureRecord) (domain.Order, error) {
	var result domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row orderModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", c.OrderID).Take(&row).Error; err != nil {
			if isNotFound(err) {
				return domain.ErrOrderNotFound
			}
			return err
		}
		if row.PaymentCaptured {
			return domain.ErrPaymentAlreadyCaptured
		}
		if len(c.From) > 0 && !containsString(domain.StoredAliases(c.From...), row.Status) {
			return domain.ErrInvalidTransition
		}

		updates := map[string]any{"updated_at": c.CapturedAt}
		if c.To != "" {
			updates = statusColumns(c.To, c.CapturedAt)
		}
		updates["payment_captured"] = true
		updates["captured_at"] = c.CapturedAt
		if err := tx.Model(&orderModel{}).
			Where("id = ?", c.OrderID).
			Where("payment_captured = ?", false).
			Updates(updates).Error; err != nil {
			return err
		}

		revenue := toRevenueModel(c.Revenue)
		if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
			Create(&revenue).Error; err != nil {
			return err
		}
		transfer := toTransferModel(c.Transfer)
		if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
			Create(&transfer).Error; err != nil {
			return err
		}
		if err := applyEffects(tx, c.OrderID, c.Effects, c.CapturedAt); err != nil {
			return err
		}
		return reload(tx, c.OrderID, &result)
	})
	return result, err
}

func (r *orderRepository) RevertCapture(ctx context.Context, rev ports.CaptureReversal) (domain.Order, error) {
	var result domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&orderModel{}).
			Where("id = ?", rev.OrderID).
			Updates(map[string]any{
				"status":           string(rev.To),
				"payment_captured": false,
				"captured_at":      nil,
				"updated_at":       rev.At,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrOrderNotFound
		}
		if err := tx.Where("order_id = ?", rev.OrderID).
			Where("status <> ?", string(domain.RevenueWithdrawn)).
			Delete(&revenueModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", rev.OrderID).Delete(&transferModel{}).Error; err != nil {
			return err
		}
		if err := applyEffects(tx, rev.OrderID, rev.Effects, rev.At); err != nil {
			return err
		}
		return reload(tx, rev.OrderID, &result)
	})
	return result, err
}

func (r *orderRepository) DeletePending(ctx context.Context, orderID string, effects ports.Effects) (bool, error) {
	return r.deletePending(ctx, "id = ?", orderID, effects)
}

func (r *orderRepository) DeletePendingBySession(ctx context.Context, sessionID string, effects ports.Effects) (bool, error) {
	return r.deletePending(ctx, "stripe_checkout_session_id = ?", sessionID, effects)
}

func (r *orderRepository) deletePending(ctx context.Context, where string, key string, effects ports.Effects) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []orderModel
		res := tx.Clauses(clause.Returning{}).
			Where(where, key).
			Where("payment_captured = ?", false).
			Where("status IN ?", domain.StoredAliases(domain.StatusPending)).
			Delete(&rows)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || len(rows) == 0 {
			return nil
		}
		deleted = true
		at := rows[0].UpdatedAt
		for _, event := range effects.Outbox {
			at = event.OccurredAt
		}
		return applyEffects(tx, rows[0].ID, effects, at)
	})
	return deleted, err
}

func (r *orderRepository) List(ctx context.Context, q ports.OrderListQuery) ([]domain.Order, error) {
	query := r.db.WithContext(ctx).Model(&orderModel{})
	if len(q.Statuses) > 0 {
		query = query.Where("status IN ?", domain.StoredAliases(q.Statuses...))
	}
	if !q.UpdatedBefore.IsZero() {
		query = query.Where("updated_at < ?", q.UpdatedBefore)
	}
	if q.AfterID != "" {
		query = query.Where("id > ?", q.AfterID)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	var rows []orderModel
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

func (r *orderRepository) ListCaptureCandidates(ctx context.Context, afterID string, limit int) ([]domain.Order, error) {
	var captureStatuses []domain.OrderStatus
	for _, s := range domain.AllStatuses() {
		if s.ImpliesCapture() {
			captureStatuses = append(captureStatuses, s)
		}
	}
	query := r.db.WithContext(ctx).Model(&orderModel{}).
		Where("payment_captured = ? OR status IN ? OR (status IN ? AND COALESCE(stripe_payment_intent_id, '') <> '')",
			true,
			domain.StoredAliases(captureStatuses...),
			domain.StoredAliases(domain.StatusPaymentAuthorized),
		)
	if afterID != "" {
		query = query.Where("id > ?", afterID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []orderModel
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

// missingOrGuarded tells a missing order apart from a failed status guard.
func missingOrGuarded(tx *gorm.DB, orderID string) error {
	var count int64
	if err := tx.Model(&orderModel{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrOrderNotFound
	}
	return domain.ErrInvalidTransition
}

func reload(tx *gorm.DB, orderID string, out *domain.Order) error {
	var row orderModel
	if err := tx.Where("id = ?", orderID).Take(&row).Error; err != nil {
		return err
	}
	*out = toDomainOrder(row)
	return nil
}

func toDomainOrders(rows []orderModel) []domain.Order {
	out := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainOrder(row))
	}
	return out
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

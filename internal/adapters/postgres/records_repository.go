package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

type revenueRepository struct {
	db *gorm.DB
}

func (r *revenueRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Revenue, error) {
	var row revenueModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return domain.Revenue{}, domain.ErrNotFound
		}
		return domain.Revenue{}, err
	}
	return toDomainRevenue(row), nil
}

func (r *revenueRepository) EnsureForOrder(ctx context.Context, revenue domain.Revenue) (bool, error) {
	row := toRevenueModel(revenue)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *revenueRepository) ListByInfluencer(ctx context.Context, influencerID string, status domain.RevenueStatus) ([]domain.Revenue, error) {
	query := r.db.WithContext(ctx).Where("influencer_id = ?", influencerID)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	var rows []revenueModel
	if err := query.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Revenue, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainRevenue(row))
	}
	return out, nil
}

func (r *revenueRepository) MarkWithdrawn(ctx context.Context, revenueIDs []string, payoutID string, entries []domain.LedgerEntry, event ports.OutboxEvent, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&revenueModel{}).
			Where("id IN ?", revenueIDs).
			Where("status = ?", string(domain.RevenueAvailable)).
			Updates(map[string]any{
				"status":     string(domain.RevenueWithdrawn),
				"payout_id":  payoutID,
				"updated_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(revenueIDs)) {
			return fmt.Errorf("%w: revenue no longer available", domain.ErrStateConflict)
		}
		if len(entries) > 0 {
			rows := toLedgerModels(entries)
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		outbox := toOutboxModel(event)
		return tx.Create(&outbox).Error
	})
}

type transferRepository struct {
	db *gorm.DB
}

func (r *transferRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Transfer, error) {
	var row transferModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return domain.Transfer{}, domain.ErrNotFound
		}
		return domain.Transfer{}, err
	}
	return toDomainTransfer(row), nil
}

func (r *transferRepository) EnsureForOrder(ctx context.Context, transfer domain.Transfer) (bool, error) {
	row := toTransferModel(transfer)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type paymentLogRepository struct {
	db *gorm.DB
}

func (r *paymentLogRepository) Append(ctx context.Context, log domain.PaymentLog) error {
	row := toPaymentLogModel(log)
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *paymentLogRepository) MarkProcessed(ctx context.Context, logID string, at time.Time, processingErr string) error {
	return r.db.WithContext(ctx).
		Model(&paymentLogModel{}).
		Where("id = ?", logID).
		Updates(map[string]any{
			"processed":        processingErr == "",
			"processing_error": nullableString(processingErr),
			"processed_at":     at,
		}).Error
}

func (r *paymentLogRepository) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&paymentLogModel{}).
		Where("event_id = ?", eventID).
		Where("processed = ?", true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

type contestationRepository struct {
	db *gorm.DB
}

func (r *contestationRepository) GetByID(ctx context.Context, contestationID string) (domain.Contestation, error) {
	var row contestationModel
	if err := r.db.WithContext(ctx).Where("id = ?", contestationID).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return domain.Contestation{}, domain.ErrContestationNotFound
		}
		return domain.Contestation{}, err
	}
	return toDomainContestation(row), nil
}

func (r *contestationRepository) GetPendingByOrderID(ctx context.Context, orderID string) (domain.Contestation, error) {
	var row contestationModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Where("status = ?", string(domain.ContestationPending)).
		Take(&row).Error; err != nil {
		if isNotFound(err) {
			return domain.Contestation{}, domain.ErrContestationNotFound
		}
		return domain.Contestation{}, err
	}
	return toDomainContestation(row), nil
}

func (r *contestationRepository) ListPending(ctx context.Context, limit int) ([]domain.Contestation, error) {
	var rows []contestationModel
	query := r.db.WithContext(ctx).Where("status = ?", string(domain.ContestationPending)).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Contestation, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainContestation(row))
	}
	return out, nil
}

type ledgerRepository struct {
	db *gorm.DB
}

func (r *ledgerRepository) ListByOrderID(ctx context.Context, orderID string) ([]domain.LedgerEntry, error) {
	return r.list(ctx, "order_id = ?", orderID)
}

func (r *ledgerRepository) ListByInfluencerID(ctx context.Context, influencerID string) ([]domain.LedgerEntry, error) {
	return r.list(ctx, "influencer_id = ?", influencerID)
}

func (r *ledgerRepository) list(ctx context.Context, where, key string) ([]domain.LedgerEntry, error) {
	var rows []ledgerEntryModel
	if err := r.db.WithContext(ctx).Where(where, key).Order("occurred_at ASC, entry_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainLedgerEntry(row))
	}
	return out, nil
}

type profileDirectory struct {
	db *gorm.DB
}

func (d *profileDirectory) GetOffer(ctx context.Context, offerID string) (ports.Offer, error) {
	var row offerModel
	if err := d.db.WithContext(ctx).Where("id = ?", offerID).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return ports.Offer{}, domain.ErrOfferNotFound
		}
		return ports.Offer{}, err
	}
	return ports.Offer{
		ID:           row.ID,
		InfluencerID: row.InfluencerID,
		Title:        row.Title,
		Price:        row.Price,
		Currency:     row.Currency,
		Active:       row.IsActive,
	}, nil
}

func (d *profileDirectory) GetInfluencerAccount(ctx context.Context, influencerID string) (ports.InfluencerAccount, error) {
	row, err := d.profile(ctx, influencerID)
	if err != nil {
		return ports.InfluencerAccount{}, err
	}
	return ports.InfluencerAccount{ID: row.ID, ConnectedAccountID: derefString(row.StripeAccountID)}, nil
}

func (d *profileDirectory) GetMerchant(ctx context.Context, merchantID string) (ports.Merchant, error) {
	row, err := d.profile(ctx, merchantID)
	if err != nil {
		return ports.Merchant{}, err
	}
	return ports.Merchant{ID: row.ID, Email: row.Email, CustomerID: derefString(row.StripeCustomerID)}, nil
}

func (d *profileDirectory) SetMerchantCustomerID(ctx context.Context, merchantID, customerID string) error {
	res := d.db.WithContext(ctx).
		Model(&profileModel{}).
		Where("id = ?", merchantID).
		Update("stripe_customer_id", customerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (d *profileDirectory) profile(ctx context.Context, id string) (profileModel, error) {
	var row profileModel
	if err := d.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return profileModel{}, domain.ErrNotFound
		}
		return profileModel{}, err
	}
	return row, nil
}

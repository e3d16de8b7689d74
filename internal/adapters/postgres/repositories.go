package postgres

import (
	"time"

	"gorm.io/gorm"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

type Repositories struct {
	Orders        ports.OrderRepository
	Revenues      ports.RevenueRepository
	Transfers     ports.TransferRepository
	PaymentLogs   ports.PaymentLogRepository
	Contestations ports.ContestationRepository
	Ledger        ports.LedgerRepository
	Outbox        ports.OutboxRepository
	Profiles      ports.ProfileDirectory
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Orders:        &orderRepository{db: db},
		Revenues:      &revenueRepository{db: db},
		Transfers:     &transferRepository{db: db},
		PaymentLogs:   &paymentLogRepository{db: db},
		Contestations: &contestationRepository{db: db},
		Ledger:        &ledgerRepository{db: db},
		Outbox:        &outboxRepository{db: db},
		Profiles:      &profileDirectory{db: db},
	}
}

// applyEffects writes the side records of an order change inside tx.
func applyEffects(tx *gorm.DB, orderID string, effects ports.Effects, at time.Time) error {
	if len(effects.Ledger) > 0 {
		rows := toLedgerModels(effects.Ledger)
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
	}
	for _, event := range effects.Outbox {
		row := toOutboxModel(event)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	if change := effects.Revenue; change != nil {
		if err := tx.Model(&revenueModel{}).
			Where("order_id = ?", orderID).
			Where("status IN ?", revenueStatuses(change.From)).
			Updates(map[string]any{
				"status":     string(change.To),
				"updated_at": at,
			}).Error; err != nil {
			return err
		}
	}
	if c := effects.Contestation; c != nil {
		row := toContestationModel(*c)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
	}
	if d := effects.Decision; d != nil {
		res := tx.Model(&contestationModel{}).
			Where("id = ?", d.ContestationID).
			Where("status = ?", string(domain.ContestationPending)).
			Updates(map[string]any{
				"status":        string(d.Status),
				"decision":      string(d.Decision),
				"decision_note": nullableString(d.Note),
				"decided_by":    d.DecidedBy,
				"decided_at":    d.DecidedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrContestationDecided
		}
	}
	return nil
}

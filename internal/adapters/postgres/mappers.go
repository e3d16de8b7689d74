package postgres

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

func toOrderModel(o domain.Order) orderModel {
	row := orderModel{
		ID:                o.ID,
		MerchantID:        o.MerchantID,
		InfluencerID:      o.InfluencerID,
		OfferID:           nullableString(o.OfferID),
		TotalAmount:       o.TotalAmount,
		NetAmount:         o.NetAmount,
		CommissionRate:    o.CommissionRate,
		Currency:          o.Currency,
		PaymentIntentID:   nullableString(o.PaymentIntentID),
		CheckoutSessionID: nullableString(o.CheckoutSessionID),
		PaymentCaptured:   o.PaymentCaptured,
		CapturedAt:        o.CapturedAt,
		Status:            string(o.Status),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		AcceptedAt:        o.AcceptedAt,
		DeliveredAt:       o.DeliveredAt,
		CompletedAt:       o.CompletedAt,
		DisputeOpenedAt:   o.DisputeOpenedAt,
	}
	if d := o.AdminDecision; d != nil {
		at := d.DecidedAt
		row.AdminDecision = nullableString(d.Decision)
		row.AdminDecidedBy = nullableString(d.DecidedBy)
		row.AdminDecidedAt = &at
	}
	return row
}

// toDomainOrder folds legacy status spellings onto canonical values.
func toDomainOrder(row orderModel) domain.Order {
	status := domain.OrderStatus(row.Status)
	if parsed, ok := domain.ParseStatus(row.Status); ok {
		status = parsed
	}
	o := domain.Order{
		ID:                row.ID,
		MerchantID:        row.MerchantID,
		InfluencerID:      row.InfluencerID,
		OfferID:           derefString(row.OfferID),
		TotalAmount:       row.TotalAmount,
		NetAmount:         row.NetAmount,
		CommissionRate:    row.CommissionRate,
		Currency:          row.Currency,
		PaymentIntentID:   derefString(row.PaymentIntentID),
		CheckoutSessionID: derefString(row.CheckoutSessionID),
		PaymentCaptured:   row.PaymentCaptured,
		CapturedAt:        row.CapturedAt,
		Status:            status,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
		AcceptedAt:        row.AcceptedAt,
		DeliveredAt:       row.DeliveredAt,
		CompletedAt:       row.CompletedAt,
		DisputeOpenedAt:   row.DisputeOpenedAt,
	}
	if row.AdminDecision != nil {
		d := domain.AdminDecision{Decision: *row.AdminDecision, DecidedBy: derefString(row.AdminDecidedBy)}
		if row.AdminDecidedAt != nil {
			d.DecidedAt = *row.AdminDecidedAt
		}
		o.AdminDecision = &d
	}
	return o
}

// statusColumns returns the column updates for moving an order to a status,
// including the milestone stamp domain.Order.ApplyStatus would set.
func statusColumns(to domain.OrderStatus, at time.Time) map[string]any {
	var scratch domain.Order
	scratch.ApplyStatus(to, at)
	updates := map[string]any{
		"status":     string(to),
		"updated_at": at,
	}
	if scratch.AcceptedAt != nil {
		updates["accepted_at"] = at
	}
	if scratch.DeliveredAt != nil {
		updates["delivered_at"] = at
	}
	if scratch.CompletedAt != nil {
		updates["completed_at"] = at
	}
	if scratch.DisputeOpenedAt != nil {
		updates["dispute_opened_at"] = at
	}
	return updates
}

func toRevenueModel(r domain.Revenue) revenueModel {
	return revenueModel{
		ID:           r.ID,
		InfluencerID: r.InfluencerID,
		OrderID:      r.OrderID,
		Amount:       r.Amount,
		Currency:     r.Currency,
		Status:       string(r.Status),
		PayoutID:     nullableString(r.PayoutID),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toDomainRevenue(row revenueModel) domain.Revenue {
	return domain.Revenue{
		ID:           row.ID,
		InfluencerID: row.InfluencerID,
		OrderID:      row.OrderID,
		Amount:       row.Amount,
		Currency:     row.Currency,
		Status:       domain.RevenueStatus(row.Status),
		PayoutID:     derefString(row.PayoutID),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func toTransferModel(t domain.Transfer) transferModel {
	return transferModel{
		ID:               t.ID,
		OrderID:          t.OrderID,
		InfluencerID:     t.InfluencerID,
		GrossAmount:      t.GrossAmount,
		PlatformFee:      t.PlatformFee,
		InfluencerAmount: t.InfluencerAmount,
		Currency:         t.Currency,
		StripeTransferID: t.ProcessorRef,
		CreatedAt:        t.CreatedAt,
	}
}

func toDomainTransfer(row transferModel) domain.Transfer {
	return domain.Transfer{
		ID:               row.ID,
		OrderID:          row.OrderID,
		InfluencerID:     row.InfluencerID,
		GrossAmount:      row.GrossAmount,
		PlatformFee:      row.PlatformFee,
		InfluencerAmount: row.InfluencerAmount,
		Currency:         row.Currency,
		ProcessorRef:     row.StripeTransferID,
		CreatedAt:        row.CreatedAt,
	}
}

func toContestationModel(c domain.Contestation) contestationModel {
	return contestationModel{
		ID:           c.ID,
		OrderID:      c.OrderID,
		OpenedBy:     c.OpenedBy,
		OpenedByRole: string(c.OpenedByRole),
		Reason:       c.Reason,
		Evidence:     c.Evidence,
		Status:       string(c.Status),
		Decision:     nullableString(string(c.Decision)),
		DecisionNote: nullableString(c.DecisionNote),
		DecidedBy:    nullableString(c.DecidedBy),
		DecidedAt:    c.DecidedAt,
		CreatedAt:    c.CreatedAt,
	}
}

func toDomainContestation(row contestationModel) domain.Contestation {
	return domain.Contestation{
		ID:           row.ID,
		OrderID:      row.OrderID,
		OpenedBy:     row.OpenedBy,
		OpenedByRole: domain.Role(row.OpenedByRole),
		Reason:       row.Reason,
		Evidence:     row.Evidence,
		Status:       domain.ContestationStatus(row.Status),
		Decision:     domain.ContestationDecision(derefString(row.Decision)),
		DecisionNote: derefString(row.DecisionNote),
		DecidedBy:    derefString(row.DecidedBy),
		DecidedAt:    row.DecidedAt,
		CreatedAt:    row.CreatedAt,
	}
}

func toLedgerModels(entries []domain.LedgerEntry) []ledgerEntryModel {
	rows := make([]ledgerEntryModel, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, ledgerEntryModel{
			EntryID:      e.EntryID,
			OrderID:      e.OrderID,
			InfluencerID: e.InfluencerID,
			EntryType:    string(e.EntryType),
			Amount:       e.Amount,
			OccurredAt:   e.OccurredAt,
		})
	}
	return rows
}

func toDomainLedgerEntry(row ledgerEntryModel) domain.LedgerEntry {
	return domain.LedgerEntry{
		EntryID:      row.EntryID,
		OrderID:      row.OrderID,
		InfluencerID: row.InfluencerID,
		EntryType:    domain.LedgerEntryType(row.EntryType),
		Amount:       row.Amount,
		OccurredAt:   row.OccurredAt,
	}
}

// toPaymentLogModel keeps the delivery body as received. The column is bytea
// so signature checks can be replayed against the stored bytes.
func toPaymentLogModel(log domain.PaymentLog) paymentLogModel {
	return paymentLogModel{
		ID:         log.ID,
		EventID:    log.EventID,
		EventType:  log.EventType,
		Payload:    bytes.Clone(log.Payload),
		Processed:  log.Processed,
		ReceivedAt: log.ReceivedAt,
	}
}

func toOutboxModel(event ports.OutboxEvent) orderOutboxModel {
	return orderOutboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      string(event.Payload),
		CreatedAt:    event.OccurredAt,
	}
}

func toOutboxRecord(row orderOutboxModel) ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID:       row.OutboxID,
		EventType:      row.EventType,
		PartitionKey:   row.PartitionKey,
		Payload:        []byte(row.Payload),
		RetryCount:     row.RetryCount,
		LastError:      row.LastError,
		CreatedAt:      row.CreatedAt,
		PublishedAt:    row.PublishedAt,
		LastErrorAt:    row.LastErrorAt,
		ClaimToken:     row.ClaimToken,
		ClaimUntil:     row.ClaimUntil,
		DeadLetteredAt: row.DeadLetteredAt,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func revenueStatuses(statuses []domain.RevenueStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

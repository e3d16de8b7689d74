package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntryType string

const (
	LedgerAuthorize       LedgerEntryType = "authorize"
	LedgerCapture         LedgerEntryType = "capture"
	LedgerCaptureReverted LedgerEntryType = "capture_reverted"
	LedgerVoid            LedgerEntryType = "void"
	LedgerRelease         LedgerEntryType = "release"
	LedgerRefund          LedgerEntryType = "refund"
	LedgerWithdraw        LedgerEntryType = "withdraw"
)

// LedgerEntry is an append-only escrow movement. Entries are only written in
// the same transaction as the order transition that caused them.
type LedgerEntry struct {
	EntryID      string
	OrderID      string
	InfluencerID string
	EntryType    LedgerEntryType
	Amount       decimal.Decimal
	OccurredAt   time.Time
}

type EscrowBalance struct {
	Scope      string
	ScopeID    string
	Authorized decimal.Decimal
	Captured   decimal.Decimal
	Released   decimal.Decimal
	Refunded   decimal.Decimal
	Voided     decimal.Decimal
	Withdrawn  decimal.Decimal
	// Held is what the platform still holds in escrow: captured funds neither
	// released to the influencer nor refunded.
	Held         decimal.Decimal
	Entries      []LedgerEntry
	CalculatedAt time.Time
}

// SummarizeLedger folds entries into a balance.
func SummarizeLedger(scope, scopeID string, entries []LedgerEntry, now time.Time) EscrowBalance {
	b := EscrowBalance{
		Scope:        scope,
		ScopeID:      scopeID,
		Authorized:   decimal.Zero,
		Captured:     decimal.Zero,
		Released:     decimal.Zero,
		Refunded:     decimal.Zero,
		Voided:       decimal.Zero,
		Withdrawn:    decimal.Zero,
		Entries:      entries,
		CalculatedAt: now,
	}
	for _, e := range entries {
		switch e.EntryType {
		case LedgerAuthorize:
			b.Authorized = b.Authorized.Add(e.Amount)
		case LedgerCapture:
			b.Captured = b.Captured.Add(e.Amount)
		case LedgerCaptureReverted:
			b.Captured = b.Captured.Sub(e.Amount)
		case LedgerVoid:
			b.Voided = b.Voided.Add(e.Amount)
		case LedgerRelease:
			b.Released = b.Released.Add(e.Amount)
		case LedgerRefund:
			b.Refunded = b.Refunded.Add(e.Amount)
		case LedgerWithdraw:
			b.Withdrawn = b.Withdrawn.Add(e.Amount)
		}
	}
	b.Held = b.Captured.Sub(b.Released).Sub(b.Refunded)
	if b.Held.IsNegative() {
		b.Held = decimal.Zero
	}
	return b
}

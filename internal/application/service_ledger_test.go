package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/processor"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
)

func (f *fixture) completedOrder(t *testing.T) domain.Order {
	t.Helper()
	order := f.deliveredOrder(t)
	completed, err := f.service.ConfirmOrder(context.Background(), merchant, order.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return completed
}

func TestOrderLedgerFollowsLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.completedOrder(t)

	balance, err := f.service.OrderLedger(ctx, influencer, order.ID)
	if err != nil {
		t.Fatalf("order ledger: %v", err)
	}
	wantTypes := []domain.LedgerEntryType{domain.LedgerAuthorize, domain.LedgerCapture, domain.LedgerRelease}
	if len(balance.Entries) != len(wantTypes) {
		t.Fatalf("expected %d entries, got %+v", len(wantTypes), balance.Entries)
	}
	for i, want := range wantTypes {
		if balance.Entries[i].EntryType != want {
			t.Fatalf("entry %d: expected %s, got %s", i, want, balance.Entries[i].EntryType)
		}
	}
	if !balance.Held.IsZero() {
		t.Fatalf("a released order holds nothing, got %s", balance.Held)
	}
	if _, err := f.service.OrderLedger(ctx, outsider, order.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider ledger read should be forbidden, got %v", err)
	}
}

func TestInfluencerLedgerAccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.completedOrder(t)

	balance, err := f.service.InfluencerLedger(ctx, influencer, influencerID)
	if err != nil {
		t.Fatalf("influencer ledger: %v", err)
	}
	if balance.Scope != "influencer" || !balance.Captured.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("unexpected balance %+v", balance)
	}
	if _, err := f.service.InfluencerLedger(ctx, merchant, influencerID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("merchant cannot read an influencer ledger, got %v", err)
	}
	if _, err := f.service.InfluencerLedger(ctx, admin, influencerID); err != nil {
		t.Fatalf("admin read: %v", err)
	}
}

func TestWithdrawalTakesWholeRevenues(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	first := f.completedOrder(t)
	second := f.completedOrder(t)

	if _, err := f.service.RequestWithdrawal(ctx, influencer, application.WithdrawalInput{Amount: decimal.NewFromInt(500)}); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := f.service.RequestWithdrawal(ctx, merchant, application.WithdrawalInput{}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("merchants cannot withdraw, got %v", err)
	}

	payout, err := f.service.RequestWithdrawal(ctx, influencer, application.WithdrawalInput{Amount: decimal.NewFromInt(200)})
	if err != nil {
		t.Fatalf("withdraw 200: %v", err)
	}
	if !payout.Amount.Equal(decimal.NewFromInt(180)) || len(payout.RevenueIDs) != 1 {
		t.Fatalf("only one whole revenue fits under 200, got %+v", payout)
	}

	rest, err := f.service.RequestWithdrawal(ctx, influencer, application.WithdrawalInput{})
	if err != nil {
		t.Fatalf("withdraw rest: %v", err)
	}
	if !rest.Amount.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("expected the remaining 180, got %s", rest.Amount)
	}
	for _, id := range []string{first.ID, second.ID} {
		if f.revenueStatus(t, id) != domain.RevenueWithdrawn {
			t.Fatalf("revenue of %s should be withdrawn", id)
		}
	}
	if n := len(f.sandbox.Payouts()); n != 2 {
		t.Fatalf("expected two processor payouts, got %d", n)
	}
	if _, err := f.service.RequestWithdrawal(ctx, influencer, application.WithdrawalInput{}); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("nothing left to withdraw, got %v", err)
	}

	balance, err := f.service.InfluencerLedger(ctx, influencer, influencerID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if !balance.Withdrawn.Equal(decimal.NewFromInt(360)) {
		t.Fatalf("expected 360 withdrawn, got %s", balance.Withdrawn)
	}
}

func TestWithdrawalProcessorFailureKeepsRevenueAvailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.completedOrder(t)

	f.sandbox.FailNext(processor.OpCreatePayout, nil)
	if _, err := f.service.RequestWithdrawal(ctx, influencer, application.WithdrawalInput{}); !errors.Is(err, domain.ErrProcessor) {
		t.Fatalf("expected processor error, got %v", err)
	}
	if f.revenueStatus(t, order.ID) != domain.RevenueAvailable {
		t.Fatalf("revenue must stay available when the payout fails")
	}
}

func TestPendingRevenueIsNotWithdrawable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.deliveredOrder(t)

	if _, err := f.service.RequestWithdrawal(context.Background(), influencer, application.WithdrawalInput{}); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("undelivered escrow cannot be withdrawn, got %v", err)
	}
}

func TestWithdrawalOfManyRevenuesFitsProcessorKeyLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for i := 0; i < 12; i++ {
		f.completedOrder(t)
	}

	payout, err := f.service.RequestWithdrawal(context.Background(), influencer, application.WithdrawalInput{})
	if err != nil {
		t.Fatalf("withdraw all: %v", err)
	}
	if len(payout.RevenueIDs) != 12 || !payout.Amount.Equal(decimal.NewFromInt(12*180)) {
		t.Fatalf("expected all twelve revenues paid out, got %d for %s", len(payout.RevenueIDs), payout.Amount)
	}
	if n := len(f.sandbox.Payouts()); n != 1 {
		t.Fatalf("expected a single processor payout, got %d", n)
	}
}

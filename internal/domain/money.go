package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// CommissionSplit is the fixed division of an order total between the
// influencer and the platform.
type CommissionSplit struct {
	Total      decimal.Decimal
	Net        decimal.Decimal
	Commission decimal.Decimal
	Rate       decimal.Decimal
}

// SplitCommission computes net = total x (1 - rate) rounded to cents and
// assigns the remainder to the platform so net + commission == total exactly.
func SplitCommission(total, rate decimal.Decimal) (CommissionSplit, error) {
	if !total.IsPositive() {
		return CommissionSplit{}, fmt.Errorf("%w: total must be positive", ErrAmountOutOfRange)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
		return CommissionSplit{}, fmt.Errorf("%w: commission rate must be in [0, 1)", ErrValidation)
	}
	total = total.Round(2)
	net := total.Mul(one.Sub(rate)).Round(2)
	return CommissionSplit{
		Total:      total,
		Net:        net,
		Commission: total.Sub(net),
		Rate:       rate,
	}, nil
}

// ToMinorUnits converts a decimal amount to integer cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

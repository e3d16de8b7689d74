package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RevenueStatus string

const (
	RevenuePending   RevenueStatus = "pending"
	RevenueAvailable RevenueStatus = "available"
	RevenueOnHold    RevenueStatus = "on_hold"
	RevenueReversed  RevenueStatus = "reversed"
	RevenueWithdrawn RevenueStatus = "withdrawn"
)

// Revenue is the influencer's earning for one captured order.
type Revenue struct {
	ID           string
	InfluencerID string
	OrderID      string
	Amount       decimal.Decimal
	Currency     string
	Status       RevenueStatus
	PayoutID     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transfer is the immutable record of how a captured payment was divided.
type Transfer struct {
	ID               string
	OrderID          string
	InfluencerID     string
	GrossAmount      decimal.Decimal
	PlatformFee      decimal.Decimal
	InfluencerAmount decimal.Decimal
	Currency         string
	ProcessorRef     string
	CreatedAt        time.Time
}

type Payout struct {
	ID           string
	InfluencerID string
	Amount       decimal.Decimal
	Currency     string
	Status       string
	RevenueIDs   []string
	ArrivalDate  time.Time
	CreatedAt    time.Time
}

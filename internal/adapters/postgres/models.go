package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type orderModel struct {
	ID                string          `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID        string          `gorm:"column:merchant_id;type:uuid"`
	InfluencerID      string          `gorm:"column:influencer_id;type:uuid"`
	OfferID           *string         `gorm:"column:offer_id;type:uuid"`
	TotalAmount       decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2)"`
	NetAmount         decimal.Decimal `gorm:"column:net_amount;type:numeric(12,2)"`
	CommissionRate    decimal.Decimal `gorm:"column:commission_rate;type:numeric(6,4)"`
	Currency          string          `gorm:"column:currency"`
	PaymentIntentID   *string         `gorm:"column:stripe_payment_intent_id"`
	CheckoutSessionID *string         `gorm:"column:stripe_checkout_session_id"`
	PaymentCaptured   bool            `gorm:"column:payment_captured"`
	CapturedAt        *time.Time      `gorm:"column:captured_at"`
	Status            string          `gorm:"column:status"`
	CreatedAt         time.Time       `gorm:"column:created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at"`
	AcceptedAt        *time.Time      `gorm:"column:accepted_at"`
	DeliveredAt       *time.Time      `gorm:"column:delivered_at"`
	CompletedAt       *time.Time      `gorm:"column:completed_at"`
	DisputeOpenedAt   *time.Time      `gorm:"column:dispute_opened_at"`
	AdminDecision     *string         `gorm:"column:admin_decision"`
	AdminDecidedBy    *string         `gorm:"column:admin_decided_by"`
	AdminDecidedAt    *time.Time      `gorm:"column:admin_decided_at"`
}

func (orderModel) TableName() string { return "orders" }

type revenueModel struct {
	ID           string          `gorm:"column:id;type:uuid;primaryKey"`
	InfluencerID string          `gorm:"column:influencer_id;type:uuid"`
	OrderID      string          `gorm:"column:order_id;type:uuid"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(12,2)"`
	Currency     string          `gorm:"column:currency"`
	Status       string          `gorm:"column:status"`
	PayoutID     *string         `gorm:"column:payout_id;type:uuid"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
}

func (revenueModel) TableName() string { return "influencer_revenues" }

type transferModel struct {
	ID               string          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          string          `gorm:"column:order_id;type:uuid"`
	InfluencerID     string          `gorm:"column:influencer_id;type:uuid"`
	GrossAmount      decimal.Decimal `gorm:"column:gross_amount;type:numeric(12,2)"`
	PlatformFee      decimal.Decimal `gorm:"column:platform_fee;type:numeric(12,2)"`
	InfluencerAmount decimal.Decimal `gorm:"column:influencer_amount;type:numeric(12,2)"`
	Currency         string          `gorm:"column:currency"`
	StripeTransferID string          `gorm:"column:stripe_transfer_id"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
}

func (transferModel) TableName() string { return "stripe_transfers" }

type paymentLogModel struct {
	ID              string     `gorm:"column:id;type:uuid;primaryKey"`
	EventID         string     `gorm:"column:event_id"`
	EventType       string     `gorm:"column:event_type"`
	Payload         []byte     `gorm:"column:payload;type:bytea"`
	Processed       bool       `gorm:"column:processed"`
	ProcessingError *string    `gorm:"column:processing_error"`
	ReceivedAt      time.Time  `gorm:"column:received_at"`
	ProcessedAt     *time.Time `gorm:"column:processed_at"`
}

func (paymentLogModel) TableName() string { return "payment_logs" }

type contestationModel struct {
	ID           string     `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      string     `gorm:"column:order_id;type:uuid"`
	OpenedBy     string     `gorm:"column:opened_by;type:uuid"`
	OpenedByRole string     `gorm:"column:opened_by_role"`
	Reason       string     `gorm:"column:reason"`
	Evidence     string     `gorm:"column:evidence"`
	Status       string     `gorm:"column:status"`
	Decision     *string    `gorm:"column:decision"`
	DecisionNote *string    `gorm:"column:decision_note"`
	DecidedBy    *string    `gorm:"column:decided_by"`
	DecidedAt    *time.Time `gorm:"column:decided_at"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
}

func (contestationModel) TableName() string { return "contestations" }

type ledgerEntryModel struct {
	EntryID      string          `gorm:"column:entry_id;type:uuid;primaryKey"`
	OrderID      string          `gorm:"column:order_id;type:uuid"`
	InfluencerID string          `gorm:"column:influencer_id;type:uuid"`
	EntryType    string          `gorm:"column:entry_type"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(12,2)"`
	OccurredAt   time.Time       `gorm:"column:occurred_at"`
}

func (ledgerEntryModel) TableName() string { return "escrow_ledger_entries" }

type orderOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (orderOutboxModel) TableName() string { return "order_outbox" }

type offerModel struct {
	ID           string          `gorm:"column:id;type:uuid;primaryKey"`
	InfluencerID string          `gorm:"column:influencer_id;type:uuid"`
	Title        string          `gorm:"column:title"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2)"`
	Currency     string          `gorm:"column:currency"`
	IsActive     bool            `gorm:"column:is_active"`
}

func (offerModel) TableName() string { return "offers" }

type profileModel struct {
	ID               string  `gorm:"column:id;type:uuid;primaryKey"`
	Role             string  `gorm:"column:role"`
	Email            string  `gorm:"column:email"`
	StripeAccountID  *string `gorm:"column:stripe_account_id"`
	StripeCustomerID *string `gorm:"column:stripe_customer_id"`
}

func (profileModel) TableName() string { return "profiles" }

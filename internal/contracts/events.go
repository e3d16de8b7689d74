package contracts

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PartitionKey  string          `json:"partition_key"`
	SourceService string          `json:"source_service"`
	TraceID       string          `json:"trace_id"`
	SchemaVersion string          `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

type OrderEventPayload struct {
	OrderID        string          `json:"order_id"`
	MerchantID     string          `json:"merchant_id"`
	InfluencerID   string          `json:"influencer_id"`
	Status         string          `json:"status"`
	PreviousStatus string          `json:"previous_status,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	Currency       string          `json:"currency"`
	Actor          string          `json:"actor"`
	Reason         string          `json:"reason,omitempty"`
	OccurredAt     string          `json:"occurred_at"`
}

type PayoutRequestedPayload struct {
	PayoutID     string          `json:"payout_id"`
	InfluencerID string          `json:"influencer_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	RevenueIDs   []string        `json:"revenue_ids"`
	RequestedAt  string          `json:"requested_at"`
}

type ReconciliationMismatchPayload struct {
	OrderID        string `json:"order_id"`
	IntentID       string `json:"payment_intent_id"`
	ExpectedMinor  int64  `json:"expected_minor"`
	ReceivedMinor  int64  `json:"received_minor"`
	ProcessorState string `json:"processor_status"`
	DetectedAt     string `json:"detected_at"`
}

package contracts

import (
	"bytes"
	"encoding/json"
)

// CheckoutSessionObject is the subset of a processor checkout session carried
// in webhook events.
type CheckoutSessionObject struct {
	ID            string            `json:"id"`
	Object        string            `json:"object"`
	PaymentIntent ExpandableID      `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	Status        string            `json:"status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// Metadata keys written on checkout sessions and payment intents.
const (
	MetaOrderID        = "order_id"
	MetaMerchantID     = "merchant_id"
	MetaInfluencerID   = "influencer_id"
	MetaOfferID        = "offer_id"
	MetaTotalAmount    = "total_amount"
	MetaNetAmount      = "net_amount"
	MetaCommissionRate = "commission_rate"
	MetaCurrency       = "currency"
)

// ExpandableID decodes a processor reference that is either a bare id string
// or an expanded object carrying an id.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*e = ""
		return nil
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return err
		}
		*e = ExpandableID(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

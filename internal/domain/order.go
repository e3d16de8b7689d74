package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

// Canonical stored values. Older rows may carry a legacy spelling which
// ParseStatus folds onto one of these.
const (
	StatusPending           OrderStatus = "pending"
	StatusPaymentAuthorized OrderStatus = "payment_authorized"
	StatusRefused           OrderStatus = "refusée_par_influenceur"
	StatusInProgress        OrderStatus = "en_cours"
	StatusDelivered         OrderStatus = "delivered"
	StatusCompleted         OrderStatus = "terminée"
	StatusContested         OrderStatus = "en_contestation"
	StatusPlatformValidated OrderStatus = "validée_par_plateforme"
	StatusCancelled         OrderStatus = "annulée"
)

var canonicalStatuses = []OrderStatus{
	StatusPending,
	StatusPaymentAuthorized,
	StatusRefused,
	StatusInProgress,
	StatusDelivered,
	StatusCompleted,
	StatusContested,
	StatusPlatformValidated,
	StatusCancelled,
}

var legacyStatusAliases = map[string]OrderStatus{
	"en_attente_confirmation_influenceur": StatusPaymentAuthorized,
	"paid":                                StatusPaymentAuthorized,
	"accepted":                            StatusInProgress,
	"completed":                           StatusCompleted,
	"disputed":                            StatusContested,
	"cancelled":                           StatusCancelled,
	"canceled":                            StatusCancelled,
	"refused":                             StatusRefused,
}

// ParseStatus maps a stored value (canonical or legacy) to its canonical status.
func ParseStatus(raw string) (OrderStatus, bool) {
	value := strings.TrimSpace(raw)
	for _, s := range canonicalStatuses {
		if string(s) == value {
			return s, true
		}
	}
	if s, ok := legacyStatusAliases[strings.ToLower(value)]; ok {
		return s, true
	}
	return "", false
}

// StoredAliases returns every stored spelling that reads back as one of the
// given statuses, canonical value first. Used to build status guards.
func StoredAliases(statuses ...OrderStatus) []string {
	out := make([]string, 0, len(statuses)*2)
	for _, s := range statuses {
		out = append(out, string(s))
		for alias, target := range legacyStatusAliases {
			if target == s {
				out = append(out, alias)
			}
		}
	}
	return out
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusRefused, StatusPlatformValidated, StatusCancelled:
		return true
	default:
		return false
	}
}

// ImpliesCapture reports whether an order in this status must have a
// captured payment behind it.
func (s OrderStatus) ImpliesCapture() bool {
	switch s {
	case StatusInProgress, StatusDelivered, StatusCompleted, StatusContested, StatusPlatformValidated:
		return true
	default:
		return false
	}
}

type AdminDecision struct {
	Decision  string
	DecidedBy string
	DecidedAt time.Time
}

type Order struct {
	ID                string
	MerchantID        string
	InfluencerID      string
	OfferID           string
	TotalAmount       decimal.Decimal
	NetAmount         decimal.Decimal
	CommissionRate    decimal.Decimal
	Currency          string
	PaymentIntentID   string
	CheckoutSessionID string
	PaymentCaptured   bool
	CapturedAt        *time.Time
	Status            OrderStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
	AcceptedAt        *time.Time
	DeliveredAt       *time.Time
	CompletedAt       *time.Time
	DisputeOpenedAt   *time.Time
	AdminDecision     *AdminDecision
}

func (o Order) Commission() decimal.Decimal {
	return o.TotalAmount.Sub(o.NetAmount)
}

// IsParty reports whether the subject is the merchant or influencer of the order.
func (o Order) IsParty(subjectID string) bool {
	return subjectID != "" && (subjectID == o.MerchantID || subjectID == o.InfluencerID)
}

// ApplyStatus moves the order to a new status and stamps the milestone
// timestamp that belongs to it. Both repository adapters call it so the
// stored columns stay consistent.
func (o *Order) ApplyStatus(to OrderStatus, at time.Time) {
	o.Status = to
	o.UpdatedAt = at
	stamp := at
	switch to {
	case StatusInProgress:
		o.AcceptedAt = &stamp
	case StatusDelivered:
		o.DeliveredAt = &stamp
	case StatusCompleted, StatusPlatformValidated:
		o.CompletedAt = &stamp
	case StatusContested:
		o.DisputeOpenedAt = &stamp
	}
}

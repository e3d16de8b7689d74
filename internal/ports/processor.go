package ports

import (
	"context"
	"encoding/json"
	"time"
)

// Payment intent statuses as reported by the processor.
const (
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentRequiresConfirmation  = "requires_confirmation"
	IntentRequiresAction        = "requires_action"
	IntentProcessing            = "processing"
	IntentRequiresCapture       = "requires_capture"
	IntentCanceled              = "canceled"
	IntentSucceeded             = "succeeded"
)

type CreateCustomerParams struct {
	MerchantID     string
	Email          string
	IdempotencyKey string
}

// CheckoutSessionParams describes a manual-capture checkout whose payment is
// split at creation between the destination account and the platform fee.
type CheckoutSessionParams struct {
	OrderID            string
	CustomerID         string
	Title              string
	Currency           string
	AmountMinor        int64
	PlatformFeeMinor   int64
	DestinationAccount string
	SuccessURL         string
	CancelURL          string
	ExpiresAt          time.Time
	Metadata           map[string]string
	IdempotencyKey     string
}

type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

type PaymentIntent struct {
	ID                    string
	Status                string
	AmountMinor           int64
	AmountCapturableMinor int64
	AmountReceivedMinor   int64
	Currency              string
	TransferRef           string
	Metadata              map[string]string
}

type ConnectedAccount struct {
	ID                 string
	PayoutsEnabled     bool
	ChargesEnabled     bool
	HasExternalAccount bool
}

// CanReceivePayouts reports whether funds can actually reach the influencer.
func (a ConnectedAccount) CanReceivePayouts() bool {
	return a.PayoutsEnabled && a.HasExternalAccount
}

type PayoutParams struct {
	ConnectedAccountID string
	AmountMinor        int64
	Currency           string
	IdempotencyKey     string
	Metadata           map[string]string
}

type ProcessorPayout struct {
	ID          string
	Status      string
	ArrivalDate time.Time
}

// PaymentProcessor is the outbound payment processor port. Implementations
// wrap failures in domain.ErrProcessor and report missing objects as
// domain.ErrProcessorRecordAbsent.
type PaymentProcessor interface {
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (CheckoutSession, error)
	// ExpireCheckoutSession closes an open session so it can no longer be
	// paid. A session that already completed returns domain.ErrProcessor.
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
	GetPaymentIntent(ctx context.Context, intentID string) (PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, intentID, idempotencyKey string) (PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, intentID, reason, idempotencyKey string) (PaymentIntent, error)
	GetConnectedAccount(ctx context.Context, accountID string) (ConnectedAccount, error)
	CreatePayout(ctx context.Context, params PayoutParams) (ProcessorPayout, error)
}

// ProcessorEvent is a verified webhook event. Object is the raw JSON of the
// event's data object.
type ProcessorEvent struct {
	ID      string
	Type    string
	Created time.Time
	Object  json.RawMessage
}

// WebhookVerifier authenticates a webhook payload against its signature
// header. Failures wrap domain.ErrSignatureInvalid.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (ProcessorEvent, error)
}

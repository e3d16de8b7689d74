package domain

import "time"

// Processor event types the core reacts to. Everything else is logged and ignored.
const (
	EventCheckoutSessionCompleted      = "checkout.session.completed"
	EventCheckoutSessionAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionExpired        = "checkout.session.expired"
)

// PaymentLog is one verbatim webhook delivery. Rows are never updated except
// for the processing outcome.
type PaymentLog struct {
	ID              string
	EventID         string
	EventType       string
	Payload         []byte
	Processed       bool
	ProcessingError string
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
}

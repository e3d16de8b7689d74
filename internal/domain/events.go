package domain

// Lifecycle events written to the outbox alongside order transitions.
const (
	EventOrderCheckoutStarted   = "order.checkout_started"
	EventOrderPaymentAuthorized = "order.payment_authorized"
	EventOrderPaymentCaptured   = "order.payment_captured"
	EventOrderRefused           = "order.refused"
	EventOrderCancelled         = "order.cancelled"
	EventOrderDelivered         = "order.delivered"
	EventOrderCompleted         = "order.completed"
	EventOrderContested         = "order.contested"
	EventOrderPlatformValidated = "order.platform_validated"
	EventOrderReversed          = "order.reversed"
	EventOrderCaptureReverted   = "order.capture_reverted"
	EventOrderCheckoutAbandoned = "order.checkout_abandoned"
	EventOrderLatePayment       = "order.late_payment"
	EventPayoutRequested        = "payout.requested"
	EventReconciliationMismatch = "reconciliation.amount_mismatch"
)

// EventForStatus names the event emitted when an order enters status.
func EventForStatus(status OrderStatus) string {
	switch status {
	case StatusPaymentAuthorized:
		return EventOrderPaymentAuthorized
	case StatusInProgress:
		return EventOrderPaymentCaptured
	case StatusRefused:
		return EventOrderRefused
	case StatusDelivered:
		return EventOrderDelivered
	case StatusCompleted:
		return EventOrderCompleted
	case StatusContested:
		return EventOrderContested
	case StatusPlatformValidated:
		return EventOrderPlatformValidated
	case StatusCancelled:
		return EventOrderCancelled
	default:
		return "order.updated"
	}
}

package domain

import (
	"errors"
	"fmt"
)

// Error categories. Adapters map these to transport status codes; specific
// errors below wrap exactly one category so errors.Is works on both levels.
var (
	ErrValidation         = errors.New("validation failed")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("not authorized")
	ErrNotFound           = errors.New("resource not found")
	ErrProcessor          = errors.New("payment processor error")
	ErrStateConflict      = errors.New("state conflict")
	ErrDuplicateOperation = errors.New("duplicate operation")
	// ErrConflict is raised by repositories on unique-constraint violations.
	ErrConflict = errors.New("conflict")
)

var (
	ErrOrderNotFound         = fmt.Errorf("%w: order not found", ErrNotFound)
	ErrOfferNotFound         = fmt.Errorf("%w: offer not found", ErrNotFound)
	ErrContestationNotFound  = fmt.Errorf("%w: contestation not found", ErrNotFound)
	ErrProcessorRecordAbsent = fmt.Errorf("%w: processor record not found", ErrNotFound)

	ErrInvalidTransition      = fmt.Errorf("%w: transition not allowed from current status", ErrStateConflict)
	ErrOrderBusy              = fmt.Errorf("%w: another action is in progress for this order", ErrStateConflict)
	ErrPaymentNotCapturable   = fmt.Errorf("%w: payment is not in a capturable state", ErrStateConflict)
	ErrContestWindowOpen      = fmt.Errorf("%w: contestation window has not elapsed", ErrStateConflict)
	ErrContestationPending    = fmt.Errorf("%w: a contestation is already pending for this order", ErrStateConflict)
	ErrContestationDecided    = fmt.Errorf("%w: contestation already decided", ErrStateConflict)
	ErrInsufficientFunds      = fmt.Errorf("%w: insufficient available balance", ErrStateConflict)
	ErrPaymentAlreadyCaptured = fmt.Errorf("%w: payment already captured", ErrDuplicateOperation)

	ErrPayoutDestinationMissing  = fmt.Errorf("%w: influencer has no payout destination configured", ErrValidation)
	ErrInsufficientAuthorization = fmt.Errorf("%w: authorized amount is below the order total", ErrValidation)
	ErrAmountOutOfRange          = fmt.Errorf("%w: amount out of range", ErrValidation)
	ErrReasonRequired            = fmt.Errorf("%w: reason is required", ErrValidation)
	ErrSignatureInvalid          = fmt.Errorf("%w: webhook signature verification failed", ErrValidation)
)

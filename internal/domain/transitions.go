package domain

import "fmt"

type OrderAction string

const (
	ActionCheckoutCompleted OrderAction = "checkout_completed"
	ActionAccept            OrderAction = "accept"
	ActionRefuse            OrderAction = "refuse"
	ActionCancel            OrderAction = "cancel"
	ActionExpire            OrderAction = "expire"
	ActionDeliver           OrderAction = "deliver"
	ActionConfirm           OrderAction = "confirm"
	ActionAutoConfirm       OrderAction = "auto_confirm"
	ActionContest           OrderAction = "contest"
	ActionPlatformValidate  OrderAction = "platform_validate"
	ActionPlatformReverse   OrderAction = "platform_reverse"
)

// Transitions lists every legal (action, from) pair and its target status.
var Transitions = map[OrderAction]map[OrderStatus]OrderStatus{
	ActionCheckoutCompleted: {
		StatusPending: StatusPaymentAuthorized,
	},
	ActionAccept: {
		StatusPaymentAuthorized: StatusInProgress,
	},
	ActionRefuse: {
		StatusPaymentAuthorized: StatusRefused,
	},
	ActionCancel: {
		StatusPending:           StatusCancelled,
		StatusPaymentAuthorized: StatusCancelled,
	},
	ActionExpire: {
		StatusPending:           StatusCancelled,
		StatusPaymentAuthorized: StatusCancelled,
	},
	ActionDeliver: {
		StatusInProgress: StatusDelivered,
	},
	ActionConfirm: {
		StatusDelivered: StatusCompleted,
	},
	ActionAutoConfirm: {
		StatusDelivered: StatusCompleted,
	},
	ActionContest: {
		StatusDelivered: StatusContested,
		StatusCompleted: StatusContested,
	},
	ActionPlatformValidate: {
		StatusContested: StatusPlatformValidated,
	},
	ActionPlatformReverse: {
		StatusContested: StatusCancelled,
	},
}

// NextStatus returns the target of applying action to an order in status from.
func NextStatus(from OrderStatus, action OrderAction) (OrderStatus, error) {
	targets, ok := Transitions[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}
	to, ok := targets[from]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// SourceStatuses returns the statuses from which action is legal.
func SourceStatuses(action OrderAction) []OrderStatus {
	targets := Transitions[action]
	out := make([]OrderStatus, 0, len(targets))
	for _, s := range canonicalStatuses {
		if _, ok := targets[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ParseAction accepts the user-facing action names.
func ParseAction(raw string) (OrderAction, error) {
	switch a := OrderAction(raw); a {
	case ActionAccept, ActionRefuse, ActionDeliver, ActionConfirm, ActionCancel, ActionContest:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unsupported action %q", ErrValidation, raw)
	}
}

// AllStatuses returns the canonical statuses in declaration order.
func AllStatuses() []OrderStatus {
	return append([]OrderStatus(nil), canonicalStatuses...)
}

package domain

import (
	"fmt"
	"strings"
	"time"
)

type ContestationStatus string

const (
	ContestationPending  ContestationStatus = "pending"
	ContestationResolved ContestationStatus = "resolved"
	ContestationRejected ContestationStatus = "rejected"
)

type ContestationDecision string

const (
	// DecisionRelease validates the delivery and pays the influencer.
	DecisionRelease ContestationDecision = "release"
	// DecisionReverse cancels the order and hands the funds to the refund flow.
	DecisionReverse ContestationDecision = "reverse"
)

const (
	maxReasonLength   = 2000
	maxEvidenceLength = 4000
)

type Contestation struct {
	ID           string
	OrderID      string
	OpenedBy     string
	OpenedByRole Role
	Reason       string
	Evidence     string
	Status       ContestationStatus
	Decision     ContestationDecision
	DecisionNote string
	DecidedBy    string
	DecidedAt    *time.Time
	CreatedAt    time.Time
}

func ValidateContestReason(reason, evidence string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if len(reason) > maxReasonLength {
		return fmt.Errorf("%w: reason exceeds %d characters", ErrValidation, maxReasonLength)
	}
	if len(evidence) > maxEvidenceLength {
		return fmt.Errorf("%w: evidence exceeds %d characters", ErrValidation, maxEvidenceLength)
	}
	return nil
}

func ParseDecision(raw string) (ContestationDecision, error) {
	switch d := ContestationDecision(strings.ToLower(strings.TrimSpace(raw))); d {
	case DecisionRelease, DecisionReverse:
		return d, nil
	default:
		return "", fmt.Errorf("%w: decision must be release or reverse", ErrValidation)
	}
}

// OutcomeFor returns the contestation status implied by a decision: resolved
// when the ruling favours whoever opened it, rejected otherwise.
func (c Contestation) OutcomeFor(decision ContestationDecision) ContestationStatus {
	favoursOpener := (c.OpenedByRole == RoleMerchant && decision == DecisionReverse) ||
		(c.OpenedByRole == RoleInfluencer && decision == DecisionRelease)
	if favoursOpener {
		return ContestationResolved
	}
	return ContestationRejected
}

// OrderAction maps the decision onto the order state machine.
func (d ContestationDecision) OrderAction() OrderAction {
	if d == DecisionRelease {
		return ActionPlatformValidate
	}
	return ActionPlatformReverse
}

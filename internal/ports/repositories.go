package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
)

// Effects are the side records committed in the same transaction as an
// order write. Nil or empty members are skipped.
type Effects struct {
	Ledger       []domain.LedgerEntry
	Outbox       []OutboxEvent
	Revenue      *RevenueStatusChange
	Contestation *domain.Contestation
	Decision     *ContestationDecisionRecord
}

// RevenueStatusChange moves the order's revenue row between statuses. A
// revenue row in any other status is left untouched.
type RevenueStatusChange struct {
	From []domain.RevenueStatus
	To   domain.RevenueStatus
}

type ContestationDecisionRecord struct {
	ContestationID string
	Status         domain.ContestationStatus
	Decision       domain.ContestationDecision
	Note           string
	DecidedBy      string
	DecidedAt      time.Time
}

// OrderTransition is a compare-and-swap status write: it succeeds only when
// the stored status reads back as one of From.
type OrderTransition struct {
	OrderID         string
	From            []domain.OrderStatus
	To              domain.OrderStatus
	At              time.Time
	PaymentIntentID string
	AdminDecision   *domain.AdminDecision
	Effects         Effects
}

// IntentAttachment records a payment intent on an uncaptured order without
// touching its status.
type IntentAttachment struct {
	OrderID         string
	PaymentIntentID string
	At              time.Time
	Effects         Effects
}

// CaptureRecord persists a processor-confirmed capture. When To is set the
// status is advanced in the same write, guarded by From.
type CaptureRecord struct {
	OrderID    string
	From       []domain.OrderStatus
	To         domain.OrderStatus
	CapturedAt time.Time
	Revenue    domain.Revenue
	Transfer   domain.Transfer
	Effects    Effects
}

// CaptureReversal undoes a local capture the processor does not confirm.
type CaptureReversal struct {
	OrderID string
	To      domain.OrderStatus
	At      time.Time
	Effects Effects
}

type OrderListQuery struct {
	Statuses      []domain.OrderStatus
	UpdatedBefore time.Time
	AfterID       string
	Limit         int
}

type OrderRepository interface {
	// Create inserts a new order with its effects. A duplicate checkout
	// session reference returns domain.ErrConflict.
	Create(ctx context.Context, order domain.Order, effects Effects) error
	GetByID(ctx context.Context, orderID string) (domain.Order, error)
	GetByCheckoutSessionID(ctx context.Context, sessionID string) (domain.Order, error)
	Transition(ctx context.Context, t OrderTransition) (domain.Order, error)
	// AttachPaymentIntent returns domain.ErrInvalidTransition when the order
	// is captured or already references another intent.
	AttachPaymentIntent(ctx context.Context, a IntentAttachment) (domain.Order, error)
	// RecordCapture returns domain.ErrPaymentAlreadyCaptured when the flag
	// is already set and domain.ErrInvalidTransition when From does not match.
	RecordCapture(ctx context.Context, c CaptureRecord) (domain.Order, error)
	RevertCapture(ctx context.Context, r CaptureReversal) (domain.Order, error)
	// DeletePending removes the order only while it is pending and uncaptured.
	DeletePending(ctx context.Context, orderID string, effects Effects) (bool, error)
	DeletePendingBySession(ctx context.Context, sessionID string, effects Effects) (bool, error)
	List(ctx context.Context, q OrderListQuery) ([]domain.Order, error)
	// ListCaptureCandidates returns orders that are captured, in a
	// capture-implying status, or authorized with a payment intent.
	ListCaptureCandidates(ctx context.Context, afterID string, limit int) ([]domain.Order, error)
}

type RevenueRepository interface {
	GetByOrderID(ctx context.Context, orderID string) (domain.Revenue, error)
	// EnsureForOrder inserts the revenue unless one exists for the order.
	EnsureForOrder(ctx context.Context, revenue domain.Revenue) (bool, error)
	ListByInfluencer(ctx context.Context, influencerID string, status domain.RevenueStatus) ([]domain.Revenue, error)
	MarkWithdrawn(ctx context.Context, revenueIDs []string, payoutID string, entries []domain.LedgerEntry, event OutboxEvent, at time.Time) error
}

type TransferRepository interface {
	GetByOrderID(ctx context.Context, orderID string) (domain.Transfer, error)
	EnsureForOrder(ctx context.Context, transfer domain.Transfer) (bool, error)
}

type PaymentLogRepository interface {
	Append(ctx context.Context, log domain.PaymentLog) error
	MarkProcessed(ctx context.Context, logID string, at time.Time, processingErr string) error
	HasProcessed(ctx context.Context, eventID string) (bool, error)
}

type ContestationRepository interface {
	GetByID(ctx context.Context, contestationID string) (domain.Contestation, error)
	GetPendingByOrderID(ctx context.Context, orderID string) (domain.Contestation, error)
	ListPending(ctx context.Context, limit int) ([]domain.Contestation, error)
}

type LedgerRepository interface {
	ListByOrderID(ctx context.Context, orderID string) ([]domain.LedgerEntry, error)
	ListByInfluencerID(ctx context.Context, influencerID string) ([]domain.LedgerEntry, error)
}

// Offer, InfluencerAccount and Merchant are read from collaborator-owned
// tables; the core never writes them except for the cached customer id.
type Offer struct {
	ID           string
	InfluencerID string
	Title        string
	Price        decimal.Decimal
	Currency     string
	Active       bool
}

type InfluencerAccount struct {
	ID                 string
	ConnectedAccountID string
}

type Merchant struct {
	ID         string
	Email      string
	CustomerID string
}

type ProfileDirectory interface {
	GetOffer(ctx context.Context, offerID string) (Offer, error)
	GetInfluencerAccount(ctx context.Context, influencerID string) (InfluencerAccount, error)
	GetMerchant(ctx context.Context, merchantID string) (Merchant, error)
	SetMerchantCustomerID(ctx context.Context, merchantID, customerID string) error
}

// OutboxEvent is the write-side event payload prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	// ReleaseClaim hands a claimed record back untouched so the next claim
	// can pick it up without waiting for the lease to lapse.
	ReleaseClaim(ctx context.Context, outboxID uuid.UUID, claimToken string) error
}

package application

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

type Config struct {
	ServiceName string
	// CommissionRate is the platform's share of every order total.
	CommissionRate decimal.Decimal
	MaxOrderAmount decimal.Decimal
	Currency       string

	CheckoutWindowHours      int
	AuthorizationWindowHours int
	ConfirmationWindowHours  int
	ContestWindowHours       int

	ProcessorTimeout time.Duration
	LockTTL          time.Duration
	SweepBatchSize   int

	CheckoutSuccessURL string
	CheckoutCancelURL  string
}

type Actor struct {
	SubjectID string
	Role      domain.Role
	RequestID string
}

// SystemActor is used by sweeps and webhook-driven transitions.
func SystemActor(requestID string) Actor {
	return Actor{SubjectID: "system", Role: domain.RoleSystem, RequestID: requestID}
}

type Service struct {
	cfg           Config
	logger        *slog.Logger
	orders        ports.OrderRepository
	revenues      ports.RevenueRepository
	transfers     ports.TransferRepository
	paymentLogs   ports.PaymentLogRepository
	contestations ports.ContestationRepository
	ledger        ports.LedgerRepository
	outbox        ports.OutboxRepository
	profiles      ports.ProfileDirectory
	processor     ports.PaymentProcessor
	webhooks      ports.WebhookVerifier
	locker        ports.Locker
	nowFn         func() time.Time
}

type Dependencies struct {
	Config        Config
	Logger        *slog.Logger
	Orders        ports.OrderRepository
	Revenues      ports.RevenueRepository
	Transfers     ports.TransferRepository
	PaymentLogs   ports.PaymentLogRepository
	Contestations ports.ContestationRepository
	Ledger        ports.LedgerRepository
	Outbox        ports.OutboxRepository
	Profiles      ports.ProfileDirectory
	Processor     ports.PaymentProcessor
	Webhooks      ports.WebhookVerifier
	Locker        ports.Locker
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "collab-escrow-core"
	}
	if cfg.CommissionRate.IsZero() {
		cfg.CommissionRate = decimal.RequireFromString("0.10")
	}
	if cfg.MaxOrderAmount.IsZero() {
		cfg.MaxOrderAmount = decimal.NewFromInt(10000)
	}
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	if cfg.CheckoutWindowHours <= 0 {
		cfg.CheckoutWindowHours = domain.CheckoutWindowHours
	}
	if cfg.AuthorizationWindowHours <= 0 {
		cfg.AuthorizationWindowHours = domain.AuthorizationWindowHours
	}
	if cfg.ConfirmationWindowHours <= 0 {
		cfg.ConfirmationWindowHours = domain.ConfirmationWindowHours
	}
	if cfg.ContestWindowHours <= 0 {
		cfg.ContestWindowHours = domain.ContestWindowHours
	}
	if cfg.ProcessorTimeout <= 0 {
		cfg.ProcessorTimeout = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := deps.Clock
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:           cfg,
		logger:        logger.With("service", cfg.ServiceName, "layer", "application"),
		orders:        deps.Orders,
		revenues:      deps.Revenues,
		transfers:     deps.Transfers,
		paymentLogs:   deps.PaymentLogs,
		contestations: deps.Contestations,
		ledger:        deps.Ledger,
		outbox:        deps.Outbox,
		profiles:      deps.Profiles,
		processor:     deps.Processor,
		webhooks:      deps.Webhooks,
		locker:        deps.Locker,
		nowFn:         nowFn,
	}
}

type AuthorizeInput struct {
	OfferID string
}

type CheckoutResult struct {
	OrderID     string
	SessionID   string
	CheckoutURL string
	ExpiresAt   time.Time
	Split       domain.CommissionSplit
}

type ActionInput struct {
	OrderID  string
	Action   string
	Reason   string
	Evidence string
}

// OrderView is an order plus the lazily evaluated timer state.
type OrderView struct {
	Order            domain.Order
	AutoConfirmAt    *time.Time
	ContestableAt    *time.Time
	CanContest       bool
	AvailableActions []domain.OrderAction
}

type WebhookAck struct {
	Received  bool
	EventType string
	SessionID string
	Duplicate bool
	Ignored   bool
	// Deferred marks a completed checkout whose funds are not held yet.
	Deferred  bool
}

type OpenContestationInput struct {
	OrderID  string
	Reason   string
	Evidence string
}

type ResolveContestationInput struct {
	ContestationID string
	Decision       string
	Note           string
}

type WithdrawalInput struct {
	Amount decimal.Decimal
}

// SweepReport summarises one pass of a periodic job.
type SweepReport struct {
	Name       string
	Scanned    int
	Applied    int
	Skipped    int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// ReconcileReport breaks a reconciliation pass down by outcome.
type ReconcileReport struct {
	Scanned    int
	Verified   int
	Repaired   int
	Recovered  int
	Reverted   int
	Mismatched int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

package http

import (
	"time"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
)

type orderResponse struct {
	OrderID          string                 `json:"order_id"`
	MerchantID       string                 `json:"merchant_id"`
	InfluencerID     string                 `json:"influencer_id"`
	OfferID          string                 `json:"offer_id,omitempty"`
	Status           string                 `json:"status"`
	TotalAmount      string                 `json:"total_amount"`
	NetAmount        string                 `json:"net_amount"`
	Commission       string                 `json:"commission"`
	CommissionRate   string                 `json:"commission_rate"`
	Currency         string                 `json:"currency"`
	PaymentCaptured  bool                   `json:"payment_captured"`
	CapturedAt       *time.Time             `json:"captured_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	AcceptedAt       *time.Time             `json:"accepted_at,omitempty"`
	DeliveredAt      *time.Time             `json:"delivered_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	DisputeOpenedAt  *time.Time             `json:"dispute_opened_at,omitempty"`
	AdminDecision    *adminDecisionResponse `json:"admin_decision,omitempty"`
	AutoConfirmAt    *time.Time             `json:"auto_confirm_at,omitempty"`
	ContestableAt    *time.Time             `json:"contestable_at,omitempty"`
	CanContest       *bool                  `json:"can_contest,omitempty"`
	AvailableActions []string               `json:"available_actions,omitempty"`
}

type adminDecisionResponse struct {
	Decision  string    `json:"decision"`
	DecidedBy string    `json:"decided_by"`
	DecidedAt time.Time `json:"decided_at"`
}

func toOrderResponse(order domain.Order) orderResponse {
	out := orderResponse{
		OrderID:         order.ID,
		MerchantID:      order.MerchantID,
		InfluencerID:    order.InfluencerID,
		OfferID:         order.OfferID,
		Status:          string(order.Status),
		TotalAmount:     order.TotalAmount.StringFixed(2),
		NetAmount:       order.NetAmount.StringFixed(2),
		Commission:      order.Commission().StringFixed(2),
		CommissionRate:  order.CommissionRate.String(),
		Currency:        order.Currency,
		PaymentCaptured: order.PaymentCaptured,
		CapturedAt:      order.CapturedAt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		AcceptedAt:      order.AcceptedAt,
		DeliveredAt:     order.DeliveredAt,
		CompletedAt:     order.CompletedAt,
		DisputeOpenedAt: order.DisputeOpenedAt,
	}
	if d := order.AdminDecision; d != nil {
		out.AdminDecision = &adminDecisionResponse{Decision: d.Decision, DecidedBy: d.DecidedBy, DecidedAt: d.DecidedAt}
	}
	return out
}

func toOrderViewResponse(view application.OrderView) orderResponse {
	out := toOrderResponse(view.Order)
	out.AutoConfirmAt = view.AutoConfirmAt
	out.ContestableAt = view.ContestableAt
	if view.ContestableAt != nil {
		canContest := view.CanContest
		out.CanContest = &canContest
	}
	for _, a := range view.AvailableActions {
		out.AvailableActions = append(out.AvailableActions, string(a))
	}
	return out
}

type contestationResponse struct {
	ContestationID string     `json:"contestation_id"`
	OrderID        string     `json:"order_id"`
	OpenedBy       string     `json:"opened_by"`
	OpenedByRole   string     `json:"opened_by_role"`
	Reason         string     `json:"reason"`
	Evidence       string     `json:"evidence,omitempty"`
	Status         string     `json:"status"`
	Decision       string     `json:"decision,omitempty"`
	DecisionNote   string     `json:"decision_note,omitempty"`
	DecidedBy      string     `json:"decided_by,omitempty"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toContestationResponse(c domain.Contestation) contestationResponse {
	return contestationResponse{
		ContestationID: c.ID,
		OrderID:        c.OrderID,
		OpenedBy:       c.OpenedBy,
		OpenedByRole:   string(c.OpenedByRole),
		Reason:         c.Reason,
		Evidence:       c.Evidence,
		Status:         string(c.Status),
		Decision:       string(c.Decision),
		DecisionNote:   c.DecisionNote,
		DecidedBy:      c.DecidedBy,
		DecidedAt:      c.DecidedAt,
		CreatedAt:      c.CreatedAt,
	}
}

type ledgerEntryResponse struct {
	EntryID    string    `json:"entry_id"`
	OrderID    string    `json:"order_id"`
	EntryType  string    `json:"entry_type"`
	Amount     string    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

type balanceResponse struct {
	Scope        string                `json:"scope"`
	ScopeID      string                `json:"scope_id"`
	Authorized   string                `json:"authorized"`
	Captured     string                `json:"captured"`
	Released     string                `json:"released"`
	Refunded     string                `json:"refunded"`
	Voided       string                `json:"voided"`
	Withdrawn    string                `json:"withdrawn"`
	Held         string                `json:"held"`
	Entries      []ledgerEntryResponse `json:"entries"`
	CalculatedAt time.Time             `json:"calculated_at"`
}

func toBalanceResponse(b domain.EscrowBalance) balanceResponse {
	out := balanceResponse{
		Scope:        b.Scope,
		ScopeID:      b.ScopeID,
		Authorized:   b.Authorized.StringFixed(2),
		Captured:     b.Captured.StringFixed(2),
		Released:     b.Released.StringFixed(2),
		Refunded:     b.Refunded.StringFixed(2),
		Voided:       b.Voided.StringFixed(2),
		Withdrawn:    b.Withdrawn.StringFixed(2),
		Held:         b.Held.StringFixed(2),
		Entries:      make([]ledgerEntryResponse, 0, len(b.Entries)),
		CalculatedAt: b.CalculatedAt,
	}
	for _, e := range b.Entries {
		out.Entries = append(out.Entries, ledgerEntryResponse{
			EntryID:    e.EntryID,
			OrderID:    e.OrderID,
			EntryType:  string(e.EntryType),
			Amount:     e.Amount.StringFixed(2),
			OccurredAt: e.OccurredAt,
		})
	}
	return out
}

type payoutResponse struct {
	PayoutID    string    `json:"payout_id"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	RevenueIDs  []string  `json:"revenue_ids"`
	ArrivalDate time.Time `json:"arrival_date,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type sweepResponse struct {
	Name       string    `json:"name"`
	Scanned    int       `json:"scanned"`
	Applied    int       `json:"applied"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

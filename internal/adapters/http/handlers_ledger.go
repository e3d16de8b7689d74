package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
)

func (h *Handler) orderLedger(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.OrderLedger(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "order_ledger", err)
		return
	}
	writeSuccess(w, http.StatusOK, toBalanceResponse(balance))
}

func (h *Handler) influencerLedger(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.InfluencerLedger(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "influencer_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "influencer_ledger", err)
		return
	}
	writeSuccess(w, http.StatusOK, toBalanceResponse(balance))
}

// withdrawalRequest carries the amount as a decimal string. An empty amount
// withdraws everything available.
type withdrawalRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "request_withdrawal", err)
		return
	}
	amount := decimal.Zero
	if raw := strings.TrimSpace(req.Amount); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			writeMappedError(r.Context(), w, "request_withdrawal", fmt.Errorf("%w: amount must be a decimal", domain.ErrValidation))
			return
		}
		amount = parsed
	}

	payout, err := h.service.RequestWithdrawal(r.Context(), actorFromContext(r.Context()), application.WithdrawalInput{Amount: amount})
	if err != nil {
		writeMappedError(r.Context(), w, "request_withdrawal", err)
		return
	}
	writeSuccess(w, http.StatusCreated, payoutResponse{
		PayoutID:    payout.ID,
		Amount:      payout.Amount.StringFixed(2),
		Currency:    payout.Currency,
		Status:      payout.Status,
		RevenueIDs:  payout.RevenueIDs,
		ArrivalDate: payout.ArrivalDate,
		CreatedAt:   payout.CreatedAt,
	})
}

package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
)

type checkoutRequest struct {
	OfferID string `json:"offer_id"`
}

func (h *Handler) startCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "start_checkout", err)
		return
	}

	res, err := h.service.Authorize(r.Context(), actorFromContext(r.Context()), application.AuthorizeInput{OfferID: req.OfferID})
	if err != nil {
		writeMappedError(r.Context(), w, "start_checkout", err)
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]any{
		"order_id":     res.OrderID,
		"session_id":   res.SessionID,
		"checkout_url": res.CheckoutURL,
		"expires_at":   res.ExpiresAt,
		"total_amount": res.Split.Total.StringFixed(2),
		"net_amount":   res.Split.Net.StringFixed(2),
		"commission":   res.Split.Commission.StringFixed(2),
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetOrder(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_order", err)
		return
	}
	writeSuccess(w, http.StatusOK, toOrderViewResponse(view))
}

// orderActionRequest keeps the camelCase orderId clients already send; the
// snake_case spelling is accepted as well.
type orderActionRequest struct {
	OrderID      string `json:"orderId"`
	OrderIDSnake string `json:"order_id"`
	Action       string `json:"action"`
	Reason       string `json:"reason"`
	Evidence     string `json:"evidence"`
}

func (h *Handler) orderAction(w http.ResponseWriter, r *http.Request) {
	var req orderActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "order_action", err)
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		orderID = strings.TrimSpace(req.OrderIDSnake)
	}

	order, err := h.service.PerformAction(r.Context(), actorFromContext(r.Context()), application.ActionInput{
		OrderID:  orderID,
		Action:   req.Action,
		Reason:   req.Reason,
		Evidence: req.Evidence,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "order_action", err)
		return
	}
	writeSuccess(w, http.StatusOK, toOrderResponse(order))
}

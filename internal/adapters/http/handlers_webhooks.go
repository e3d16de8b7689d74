package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
)

const maxWebhookBytes = 64 << 10

// stripeWebhook acknowledges processor events. Any non-2xx response makes
// the processor redeliver, so only processing failures that a retry can fix
// answer 5xx.
func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		logHTTPOperationError(r.Context(), "stripe_webhook", http.StatusBadRequest, "VALIDATION_ERROR", "unreadable body", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	ack, err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSignatureInvalid):
		logHTTPOperationError(r.Context(), "stripe_webhook", http.StatusBadRequest, "INVALID_SIGNATURE", "invalid signature", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return
	case errors.Is(err, domain.ErrValidation):
		logHTTPOperationError(r.Context(), "stripe_webhook", http.StatusBadRequest, "VALIDATION_ERROR", "malformed event", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed event"})
		return
	default:
		logHTTPOperationError(r.Context(), "stripe_webhook", http.StatusInternalServerError, "WEBHOOK_PROCESSING_FAILED", "processing failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "processing failed"})
		return
	}

	body := map[string]any{
		"received":   ack.Received,
		"event_type": ack.EventType,
	}
	if ack.SessionID != "" {
		body["session_id"] = ack.SessionID
	}
	if ack.Duplicate {
		body["duplicate"] = true
	}
	if ack.Deferred {
		body["deferred"] = true
	}
	writeJSON(w, http.StatusOK, body)
}

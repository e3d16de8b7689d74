package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

// ReadinessCheck reports whether backing stores are reachable.
type ReadinessCheck func(ctx context.Context) error

// Handler is the HTTP adapter entrypoint for escrow use-cases.
type Handler struct {
	service  *application.Service
	verifier ports.TokenVerifier
	ready    ReadinessCheck
}

func NewHandler(service *application.Service, verifier ports.TokenVerifier, ready ReadinessCheck) *Handler {
	return &Handler{service: service, verifier: verifier, ready: ready}
}

type RouterOptions struct {
	// RateLimit is the sustained requests per second allowed per client on
	// /v1. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// NewRouter registers the escrow routes and middleware stack. The webhook
// route is authenticated by its signature, not by a bearer token.
func NewRouter(handler *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Post("/webhooks/stripe", handler.stripeWebhook)

	r.Route("/v1", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(newClientLimiter(opts.RateLimit, opts.RateBurst).middleware)
		}
		r.Use(handler.authMiddleware)

		r.Post("/checkout", handler.startCheckout)
		r.Get("/orders/{order_id}", handler.getOrder)
		r.Post("/orders/actions", handler.orderAction)

		r.Get("/ledger/orders/{order_id}", handler.orderLedger)
		r.Get("/ledger/influencers/{influencer_id}", handler.influencerLedger)
		r.Post("/withdrawals", handler.requestWithdrawal)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/contestations", handler.listContestations)
			r.Post("/contestations/{contestation_id}/decision", handler.decideContestation)
			r.Post("/orders/{order_id}/capture", handler.adminCapture)
			r.Post("/orders/{order_id}/cancel", handler.adminCancel)
			r.Post("/sweeps/{name}", handler.runSweep)
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			logHTTPOperationError(r.Context(), "readyz", http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable", err)
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable")
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}

package http

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
)

type decisionRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

func (h *Handler) listContestations(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListPendingContestations(r.Context(), actorFromContext(r.Context()), parseIntDefault(r.URL.Query().Get("limit"), 50))
	if err != nil {
		writeMappedError(r.Context(), w, "list_contestations", err)
		return
	}
	out := make([]contestationResponse, 0, len(items))
	for _, c := range items {
		out = append(out, toContestationResponse(c))
	}
	writeSuccess(w, http.StatusOK, map[string]any{"contestations": out})
}

func (h *Handler) decideContestation(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "decide_contestation", err)
		return
	}

	contestation, order, err := h.service.ResolveContestation(r.Context(), actorFromContext(r.Context()), application.ResolveContestationInput{
		ContestationID: chi.URLParam(r, "contestation_id"),
		Decision:       req.Decision,
		Note:           req.Note,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "decide_contestation", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"contestation": toContestationResponse(contestation),
		"order":        toOrderResponse(order),
	})
}

func (h *Handler) adminCapture(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Capture(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "admin_capture", err)
		return
	}
	writeSuccess(w, http.StatusOK, toOrderResponse(order))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) adminCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeValidationError(r.Context(), w, "admin_cancel", err)
			return
		}
	}
	order, err := h.service.Cancel(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "order_id"), req.Reason)
	if err != nil {
		writeMappedError(r.Context(), w, "admin_cancel", err)
		return
	}
	writeSuccess(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) runSweep(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if actor.Role != domain.RoleAdmin {
		writeMappedError(r.Context(), w, "run_sweep", domain.ErrForbidden)
		return
	}
	name := chi.URLParam(r, "name")
	report, err := h.service.RunSweep(r.Context(), name)
	if err != nil {
		writeMappedError(r.Context(), w, "run_sweep", fmt.Errorf("sweep %s: %w", name, err))
		return
	}
	writeSuccess(w, http.StatusOK, sweepResponse{
		Name:       report.Name,
		Scanned:    report.Scanned,
		Applied:    report.Applied,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	})
}

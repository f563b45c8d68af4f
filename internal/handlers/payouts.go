package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/souqline/backend/internal/models"
)

type PayoutService interface {
	RequestPayout(ctx context.Context, providerID uuid.UUID, amount int64, method string) (*models.PayoutRequest, error)
	Approve(ctx context.Context, payoutID, adminID uuid.UUID) (*models.PayoutRequest, error)
	Reject(ctx context.Context, payoutID, adminID uuid.UUID, reason string) (*models.PayoutRequest, error)
	StartProcessing(ctx context.Context, payoutID, adminID uuid.UUID, transferID string) (*models.PayoutRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
	List(ctx context.Context, status *models.PayoutStatus) ([]*models.PayoutRequest, error)
	Summary(ctx context.Context) (*models.PayoutSummary, error)
	Available(ctx context.Context, providerID uuid.UUID) (int64, error)
}

type PayoutHandler struct {
	Payouts PayoutService
	Logger  *slog.Logger
}

// GET /api/v1/payouts/available
func (h *PayoutHandler) Available(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	amount, err := h.Payouts.Available(r.Context(), p.AccountID)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"available": amount})
}

type payoutRequest struct {
	Amount int64  `json:"amount"`
	Method string `json:"method"`
}

// POST /api/v1/payouts
func (h *PayoutHandler) Request(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req payoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	pr, err := h.Payouts.RequestPayout(r.Context(), p.AccountID, req.Amount, req.Method)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusCreated, pr)
}

// GET /api/v1/admin/payouts?status=
func (h *PayoutHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *models.PayoutStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := models.PayoutStatus(raw)
		switch s {
		case models.PayoutRequested, models.PayoutProcessing, models.PayoutCompleted, models.PayoutRejected:
			status = &s
		default:
			badRequest(w, "unknown status")
			return
		}
	}
	list, err := h.Payouts.List(r.Context(), status)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	if list == nil {
		list = []*models.PayoutRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /api/v1/admin/payouts/{id}
func (h *PayoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	pr, err := h.Payouts.Get(r.Context(), id)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// GET /api/v1/admin/payouts/summary
func (h *PayoutHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Payouts.Summary(r.Context())
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// POST /api/v1/admin/payouts/{id}/approve
func (h *PayoutHandler) Approve(w http.ResponseWriter, r *http.Request) {
	admin, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	pr, err := h.Payouts.Approve(r.Context(), id, admin.AccountID)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// POST /api/v1/admin/payouts/{id}/reject
func (h *PayoutHandler) Reject(w http.ResponseWriter, r *http.Request) {
	admin, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	pr, err := h.Payouts.Reject(r.Context(), id, admin.AccountID, req.Reason)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

type processingRequest struct {
	TransferID string `json:"transfer_id"`
}

// POST /api/v1/admin/payouts/{id}/processing
func (h *PayoutHandler) StartProcessing(w http.ResponseWriter, r *http.Request) {
	admin, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req processingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	pr, err := h.Payouts.StartProcessing(r.Context(), id, admin.AccountID, req.TransferID)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/souqline/backend/internal/ledger"
	"github.com/souqline/backend/internal/models"
)

type CreditService interface {
	Spend(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error)
	Refund(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error)
	Adjust(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error)
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
	History(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.CreditTransaction, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*ledger.Reconciliation, error)
}

// CreditsHandler serves the caller's ledger and the admin credit tools.
type CreditsHandler struct {
	Ledger CreditService
	Logger *slog.Logger
}

type creditsResponse struct {
	Balance      int64                       `json:"balance"`
	Transactions []*models.CreditTransaction `json:"transactions"`
}

// GET /api/v1/credits?limit=
func (h *CreditsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	balance, err := h.Ledger.Balance(r.Context(), p.AccountID)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	history, err := h.Ledger.History(r.Context(), p.AccountID, limit)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	if history == nil {
		history = []*models.CreditTransaction{}
	}
	writeJSON(w, http.StatusOK, creditsResponse{Balance: balance, Transactions: history})
}

type spendRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// POST /api/v1/credits/spend
func (h *CreditsHandler) Spend(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req spendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	tx, err := h.Ledger.Spend(r.Context(), p.AccountID, req.Amount, req.Description)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

type adminCreditRequest struct {
	Type        string `json:"type"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// POST /api/v1/admin/accounts/{id}/credits
//
// type "refund" credits a positive amount back; type "adjustment" takes a
// signed amount.
func (h *CreditsHandler) AdminCredit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := idParam(w, r)
	if !ok {
		return
	}
	var req adminCreditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if req.Description == "" {
		badRequest(w, "description is required")
		return
	}

	var (
		tx  *models.CreditTransaction
		err error
	)
	switch req.Type {
	case "refund":
		tx, err = h.Ledger.Refund(r.Context(), accountID, req.Amount, req.Description)
	case "adjustment":
		tx, err = h.Ledger.Adjust(r.Context(), accountID, req.Amount, req.Description)
	default:
		badRequest(w, `type must be "refund" or "adjustment"`)
		return
	}
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	logOrDefault(h.Logger).Info("admin credit applied", "account_id", accountID, "type", req.Type, "amount", req.Amount)
	writeJSON(w, http.StatusCreated, tx)
}

type reconcileResponse struct {
	*ledger.Reconciliation
	Consistent bool `json:"consistent"`
}

// GET /api/v1/admin/accounts/{id}/reconcile
func (h *CreditsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := idParam(w, r)
	if !ok {
		return
	}
	rec, err := h.Ledger.Reconcile(r.Context(), accountID)
	if err != nil && !errors.Is(err, ledger.ErrBalanceMismatch) {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Reconciliation: rec, Consistent: err == nil})
}

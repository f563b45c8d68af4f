package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/souqline/backend/internal/models"
)

type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

type AccountHandler struct {
	Accounts AccountReader
	Logger   *slog.Logger
}

type accountResponse struct {
	ID                     uuid.UUID  `json:"id"`
	Email                  string     `json:"email"`
	DisplayName            string     `json:"display_name"`
	Country                string     `json:"country"`
	CreditBalance          int64      `json:"credit_balance"`
	IsPro                  bool       `json:"is_pro"`
	ProExpiresAt           *time.Time `json:"pro_expires_at,omitempty"`
	HasPaymentMethod       bool       `json:"has_payment_method"`
	PaymentMethodExpiresAt *time.Time `json:"payment_method_expires_at,omitempty"`
}

// GET /api/v1/account/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	acc, err := h.Accounts.GetByID(r.Context(), p.AccountID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not_found", "account not found")
		return
	}
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		ID:                     acc.ID,
		Email:                  acc.Email,
		DisplayName:            acc.DisplayName,
		Country:                acc.Country,
		CreditBalance:          acc.CreditBalance,
		IsPro:                  acc.IsPro,
		ProExpiresAt:           acc.ProExpiresAt,
		HasPaymentMethod:       acc.PaymentMethodToken != nil,
		PaymentMethodExpiresAt: acc.PaymentMethodExpiresAt,
	})
}

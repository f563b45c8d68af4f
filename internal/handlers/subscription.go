package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/souqline/backend/internal/models"
)

type SubscriptionReader interface {
	Get(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error)
}

type SubscriptionHandler struct {
	Subscriptions SubscriptionReader
	Logger        *slog.Logger
}

// GET /api/v1/subscription
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	sub, err := h.Subscriptions.Get(r.Context(), p.AccountID)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/souqline/backend/internal/metrics"
	"github.com/souqline/backend/internal/middleware"
	"github.com/souqline/backend/internal/models"
)

type DashboardSource interface {
	Dashboard(ctx context.Context, scope metrics.Scope, since time.Time) (*models.Dashboard, error)
}

type MetricsHandler struct {
	Metrics DashboardSource
	Logger  *slog.Logger
}

// GET /api/v1/admin/metrics?since=
//
// since accepts RFC 3339 or a plain date. The country scope comes from the
// caller, never from the query.
func (h *MetricsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	scope, err := metrics.ScopeFor(middleware.PrincipalFromCtx(r.Context()))
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = parseSince(raw)
		if err != nil {
			badRequest(w, "since must be RFC 3339 or YYYY-MM-DD")
			return
		}
	}
	d, err := h.Metrics.Dashboard(r.Context(), scope, since)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

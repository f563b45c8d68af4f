package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/souqline/backend/internal/auth"
	"github.com/souqline/backend/internal/metrics"
	"github.com/souqline/backend/internal/models"
)

type fakeDashboard struct {
	scope  metrics.Scope
	since  time.Time
	called bool
}

func (f *fakeDashboard) Dashboard(_ context.Context, scope metrics.Scope, since time.Time) (*models.Dashboard, error) {
	f.scope, f.since, f.called = scope, since, true
	return &models.Dashboard{Country: scope.Country}, nil
}

func TestMetrics_ScopedToAdminCountry(t *testing.T) {
	f := &fakeDashboard{}
	h := &MetricsHandler{Metrics: f, Logger: quietLogger()}
	p := &auth.Principal{AccountID: uuid.New(), IsAdmin: true, Country: "EG"}

	rec := serve(h.Dashboard, as(newRequest(http.MethodGet, "/?since=2026-01-15&country=SA", ""), p))
	expectStatus(t, rec, http.StatusOK)
	if f.scope.Country != "EG" {
		t.Errorf("scope = %+v, must come from the caller", f.scope)
	}
	if want := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC); !f.since.Equal(want) {
		t.Errorf("since = %v, want %v", f.since, want)
	}
}

func TestMetrics_RFC3339Since(t *testing.T) {
	f := &fakeDashboard{}
	h := &MetricsHandler{Metrics: f, Logger: quietLogger()}
	rec := serve(h.Dashboard, as(newRequest(http.MethodGet, "/?since=2026-02-01T10:00:00Z", ""), admin()))
	expectStatus(t, rec, http.StatusOK)
	if f.since.Hour() != 10 {
		t.Errorf("since = %v", f.since)
	}
}

func TestMetrics_Rejects(t *testing.T) {
	f := &fakeDashboard{}
	h := &MetricsHandler{Metrics: f, Logger: quietLogger()}

	rec := serve(h.Dashboard, as(newRequest(http.MethodGet, "/", ""), user()))
	expectStatus(t, rec, http.StatusForbidden)

	rec = serve(h.Dashboard, as(newRequest(http.MethodGet, "/?since=yesterday", ""), admin()))
	expectStatus(t, rec, http.StatusBadRequest)

	if f.called {
		t.Error("dashboard queried despite rejection")
	}
}

package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/souqline/backend/internal/handlers"
	"github.com/souqline/backend/internal/middleware"
)

// Pinger reports database health for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth          middleware.TokenValidator
	DB            Pinger
	Webhook       *handlers.WebhookHandler
	Account       *handlers.AccountHandler
	Credits       *handlers.CreditsHandler
	Subscriptions *handlers.SubscriptionHandler
	Payouts       *handlers.PayoutHandler
	Contests      *handlers.ContestHandler
	Metrics       *handlers.MetricsHandler
}

// New mounts every route on a chi router.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", healthz(d.DB))
	r.Handle("/metrics", promhttp.Handler())

	// Signature-authenticated; no bearer token.
	r.Method(http.MethodPost, "/webhooks/payments", d.Webhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(d.Auth))

		r.Get("/account/me", d.Account.Me)

		r.Get("/credits", d.Credits.Get)
		r.Post("/credits/spend", d.Credits.Spend)

		r.Get("/subscription", d.Subscriptions.Get)

		r.Get("/payouts/available", d.Payouts.Available)
		r.Post("/payouts", d.Payouts.Request)

		r.Route("/contests", func(r chi.Router) {
			r.Get("/", d.Contests.List)
			r.Post("/", d.Contests.Create)
			r.Get("/{id}", d.Contests.Get)
			r.Patch("/{id}", d.Contests.Update)
			r.Delete("/{id}", d.Contests.Delete)
			r.Post("/{id}/enter", d.Contests.Enter)
			r.Post("/{id}/close", d.Contests.Close)
			r.Post("/{id}/resolve", d.Contests.Resolve)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Get("/payouts", d.Payouts.List)
			r.Get("/payouts/summary", d.Payouts.Summary)
			r.Get("/payouts/{id}", d.Payouts.Get)
			r.Post("/payouts/{id}/approve", d.Payouts.Approve)
			r.Post("/payouts/{id}/reject", d.Payouts.Reject)
			r.Post("/payouts/{id}/processing", d.Payouts.StartProcessing)

			r.Post("/accounts/{id}/credits", d.Credits.AdminCredit)
			r.Get("/accounts/{id}/reconcile", d.Credits.Reconcile)

			r.Get("/metrics", d.Metrics.Dashboard)
		})
	})
	return r
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Payment events by type and outcome (applied, duplicate, ignored, failed, rejected).
var PaymentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "souqline",
	Subsystem: "payments",
	Name:      "events_total",
	Help:      "Payment processor events received, by type and outcome.",
}, []string{"type", "outcome"})

var CreditsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "souqline",
	Subsystem: "ledger",
	Name:      "credits_total",
	Help:      "Absolute credit amounts booked to the ledger, by transaction type.",
}, []string{"type"})

var InsufficientBalance = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "souqline",
	Subsystem: "ledger",
	Name:      "insufficient_balance_total",
	Help:      "Spend attempts rejected for insufficient balance.",
})

var PayoutTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "souqline",
	Subsystem: "payouts",
	Name:      "transitions_total",
	Help:      "Payout requests entering each status.",
}, []string{"status"})

var ContestSlots = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "souqline",
	Subsystem: "contests",
	Name:      "slot_events_total",
	Help:      "Slot reservation lifecycle events (held, confirmed, released, sold_out).",
}, []string{"event"})

var ContestsResolved = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "souqline",
	Subsystem: "contests",
	Name:      "resolved_total",
	Help:      "Contests resolved with a winner.",
})

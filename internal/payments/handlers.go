package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/souqline/backend/internal/contest"
	"github.com/souqline/backend/internal/models"
	"github.com/souqline/backend/internal/payout"
)

type CreditApplier interface {
	ApplyPurchase(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, externalPaymentID, description string) (*models.CreditTransaction, error)
}

type SubscriptionUpdater interface {
	Activate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, planType string, periodStart, periodEnd time.Time, externalID string) (*models.Subscription, error)
	Update(ctx context.Context, tx pgx.Tx, externalID string, status models.SubscriptionStatus, periodEnd time.Time) (*models.Subscription, error)
}

type EntryConfirmer interface {
	Confirm(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID, paymentID string, amountPaid int64) (*models.ContestEntry, error)
}

type TransferConfirmer interface {
	ConfirmTransfer(ctx context.Context, tx pgx.Tx, transferID string) (*models.PayoutRequest, error)
}

type CustomerStore interface {
	LinkCustomer(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, customerID string) error
	SetPaymentMethod(ctx context.Context, tx pgx.Tx, customerID, token string, expiresAt *time.Time) error
}

// RefundEnqueuer schedules a processor refund in the caller's transaction.
type RefundEnqueuer interface {
	EnqueueRefundTx(ctx context.Context, tx pgx.Tx, paymentID, reason string) error
}

// Handlers routes verified events to the component that owns their effect.
type Handlers struct {
	Credits       CreditApplier
	Subscriptions SubscriptionUpdater
	Contests      EntryConfirmer
	Payouts       TransferConfirmer
	Customers     CustomerStore
	Refunds       RefundEnqueuer
	Log           *slog.Logger
}

// Register installs every handled event type on g.
func (h *Handlers) Register(g *Gateway) {
	if h.Log == nil {
		h.Log = slog.Default()
	}
	g.Handle(EventCheckoutCompleted, h.checkoutCompleted)
	g.Handle(EventSubscriptionUpdated, h.subscriptionUpdated)
	g.Handle(EventSubscriptionDeleted, h.subscriptionDeleted)
	g.Handle(EventInvoicePaymentFailed, h.invoicePaymentFailed)
	g.Handle(EventPaymentMethodAttached, h.paymentMethodAttached)
	g.Handle(EventPayoutPaid, h.payoutPaid)
}

func (h *Handlers) checkoutCompleted(ctx context.Context, tx pgx.Tx, evt *Event) error {
	purchaseType := evt.Meta("purchaseType")
	if purchaseType == models.PurchaseContestEntry {
		return h.contestEntryPaid(ctx, tx, evt)
	}

	userID, err := evt.MetaUUID("userId")
	if err != nil {
		return err
	}
	if customer := evt.Str("customer"); customer != "" {
		if err := h.Customers.LinkCustomer(ctx, tx, userID, customer); err != nil {
			return fmt.Errorf("link customer: %w", err)
		}
	}

	switch purchaseType {
	case models.PurchaseCredits:
		credits, err := strconv.ParseInt(evt.Meta("credits"), 10, 64)
		if err != nil || credits <= 0 {
			return fmt.Errorf("%w: metadata.credits %q", ErrMalformedEvent, evt.Meta("credits"))
		}
		paymentID := paymentIDOf(evt)
		entry, err := h.Credits.ApplyPurchase(ctx, tx, userID, credits, paymentID, fmt.Sprintf("Purchased %d credits", credits))
		if err != nil {
			return fmt.Errorf("apply credit purchase: %w", err)
		}
		h.Log.Info("credits purchased", "account_id", userID, "amount", credits, "payment_id", paymentID, "credit_tx_id", entry.ID)
		return nil

	case models.PurchaseProSubscription:
		externalID := evt.Str("subscription")
		start, okStart := evt.UnixTime("current_period_start")
		end, okEnd := evt.UnixTime("current_period_end")
		if externalID == "" || !okStart || !okEnd {
			return fmt.Errorf("%w: subscription checkout without subscription period", ErrMalformedEvent)
		}
		planType := evt.Meta("planType")
		if planType == "" {
			planType = "pro"
		}
		if _, err := h.Subscriptions.Activate(ctx, tx, userID, planType, start, end, externalID); err != nil {
			return fmt.Errorf("activate subscription: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown purchaseType %q", ErrMalformedEvent, purchaseType)
	}
}

// contestEntryPaid confirms the held slot. A payment that arrives after the
// hold lapsed and the slot was resold is refunded in the same transaction.
func (h *Handlers) contestEntryPaid(ctx context.Context, tx pgx.Tx, evt *Event) error {
	reservationID, err := evt.MetaUUID("reservationId")
	if err != nil {
		return err
	}
	paymentID := paymentIDOf(evt)
	entry, err := h.Contests.Confirm(ctx, tx, reservationID, paymentID, evt.Int("amount_total"))
	if errors.Is(err, contest.ErrReservationExpired) {
		h.Log.Warn("contest payment after reservation expired, refunding",
			"reservation_id", reservationID, "payment_id", paymentID)
		if err := h.Refunds.EnqueueRefundTx(ctx, tx, paymentID, "contest slot no longer available"); err != nil {
			return fmt.Errorf("enqueue refund: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("confirm contest entry: %w", err)
	}
	h.Log.Info("contest entry confirmed", "contest_id", entry.ContestID, "entry_id", entry.ID, "reservation_id", reservationID)
	return nil
}

func (h *Handlers) subscriptionUpdated(ctx context.Context, tx pgx.Tx, evt *Event) error {
	externalID := evt.Str("id")
	if externalID == "" {
		return fmt.Errorf("%w: subscription id missing", ErrMalformedEvent)
	}
	status, ok := mapSubscriptionStatus(evt.Str("status"))
	if !ok {
		h.Log.Info("subscription status not tracked", "external_id", externalID, "status", evt.Str("status"))
		return nil
	}
	if evt.Bool("cancel_at_period_end") {
		status = models.SubscriptionCanceled
	}
	periodEnd, _ := evt.UnixTime("current_period_end")
	_, err := h.Subscriptions.Update(ctx, tx, externalID, status, periodEnd)
	return err
}

func (h *Handlers) subscriptionDeleted(ctx context.Context, tx pgx.Tx, evt *Event) error {
	externalID := evt.Str("id")
	if externalID == "" {
		return fmt.Errorf("%w: subscription id missing", ErrMalformedEvent)
	}
	periodEnd, _ := evt.UnixTime("current_period_end")
	_, err := h.Subscriptions.Update(ctx, tx, externalID, models.SubscriptionCanceled, periodEnd)
	return err
}

func (h *Handlers) invoicePaymentFailed(ctx context.Context, tx pgx.Tx, evt *Event) error {
	externalID := evt.Str("subscription")
	if externalID == "" {
		// One-off invoice; nothing to track.
		return nil
	}
	_, err := h.Subscriptions.Update(ctx, tx, externalID, models.SubscriptionPastDue, time.Time{})
	return err
}

func (h *Handlers) paymentMethodAttached(ctx context.Context, tx pgx.Tx, evt *Event) error {
	token, customer := evt.Str("id"), evt.Str("customer")
	if token == "" || customer == "" {
		return fmt.Errorf("%w: payment method without id or customer", ErrMalformedEvent)
	}
	var expiresAt *time.Time
	if month, year := evt.Int("card.exp_month"), evt.Int("card.exp_year"); month >= 1 && month <= 12 && year > 0 {
		// Cards are valid through the last instant of the expiry month.
		t := time.Date(int(year), time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Second)
		expiresAt = &t
	}
	err := h.Customers.SetPaymentMethod(ctx, tx, customer, token, expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		h.Log.Warn("payment method for unknown customer", "customer", customer)
		return nil
	}
	return err
}

func (h *Handlers) payoutPaid(ctx context.Context, tx pgx.Tx, evt *Event) error {
	transferID := evt.Str("id")
	if transferID == "" {
		return fmt.Errorf("%w: transfer id missing", ErrMalformedEvent)
	}
	p, err := h.Payouts.ConfirmTransfer(ctx, tx, transferID)
	if errors.Is(err, payout.ErrNotFound) {
		h.Log.Warn("payout.paid for unknown transfer", "transfer_id", transferID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("confirm transfer: %w", err)
	}
	h.Log.Info("payout transfer confirmed", "payout_id", p.ID, "transfer_id", transferID)
	return nil
}

func mapSubscriptionStatus(s string) (models.SubscriptionStatus, bool) {
	switch s {
	case "active", "trialing":
		return models.SubscriptionActive, true
	case "past_due", "unpaid":
		return models.SubscriptionPastDue, true
	case "canceled":
		return models.SubscriptionCanceled, true
	}
	return "", false
}

// paymentIDOf prefers the payment intent; sessions without one fall back to
// the session id so the idempotency key is never empty.
func paymentIDOf(evt *Event) string {
	if id := evt.Str("payment_intent"); id != "" {
		return id
	}
	return evt.Str("id")
}

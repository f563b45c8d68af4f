package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/souqline/backend/internal/models"
)

var (
	// ErrNotFound is returned for an unknown subscription. For processor
	// updates it is retryable: the activation may not have arrived yet.
	ErrNotFound        = errors.New("subscription not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidPeriod   = errors.New("invalid subscription period")
)

type Repo interface {
	UpsertActiveTx(ctx context.Context, tx pgx.Tx, s *models.Subscription) (bool, error)
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error)
	GetByAccountIDTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*models.Subscription, error)
	GetByExternalIDForUpdate(ctx context.Context, tx pgx.Tx, externalID string) (*models.Subscription, error)
	UpdateStateTx(ctx context.Context, tx pgx.Tx, s *models.Subscription) error
}

type AccountRepo interface {
	SetPro(ctx context.Context, tx pgx.Tx, id uuid.UUID, expiresAt time.Time) error
}

// Manager keeps the single subscription row per account in step with the
// processor. State only moves forward; events describing an older period are
// ignored.
type Manager struct {
	subs     Repo
	accounts AccountRepo
	log      *slog.Logger
}

func NewManager(subs Repo, accounts AccountRepo, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{subs: subs, accounts: accounts, log: log}
}

// Activate records a paid subscription period and grants pro until periodEnd.
func (m *Manager) Activate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, planType string, periodStart, periodEnd time.Time, externalID string) (*models.Subscription, error) {
	if externalID == "" || !periodEnd.After(periodStart) {
		return nil, ErrInvalidPeriod
	}
	sub := &models.Subscription{
		AccountID:          accountID,
		PlanType:           planType,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		ExternalID:         externalID,
	}
	applied, err := m.subs.UpsertActiveTx(ctx, tx, sub)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	if !applied {
		m.log.Info("stale subscription activation ignored", "account_id", accountID, "external_id", externalID, "period_end", periodEnd)
		return m.subs.GetByAccountIDTx(ctx, tx, accountID)
	}
	if err := m.grantPro(ctx, tx, accountID, periodEnd); err != nil {
		return nil, err
	}
	m.log.Info("subscription activated", "account_id", accountID, "plan", planType, "period_end", periodEnd)
	return sub, nil
}

// Update applies a processor status change. A zero periodEnd keeps the stored
// period. Transitions the table below does not allow are acknowledged and
// dropped.
func (m *Manager) Update(ctx context.Context, tx pgx.Tx, externalID string, status models.SubscriptionStatus, periodEnd time.Time) (*models.Subscription, error) {
	sub, err := m.subs.GetByExternalIDForUpdate(ctx, tx, externalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if !periodEnd.IsZero() && periodEnd.Before(sub.CurrentPeriodEnd) {
		m.log.Info("stale subscription update ignored", "external_id", externalID, "period_end", periodEnd, "current_period_end", sub.CurrentPeriodEnd)
		return sub, nil
	}
	extends := !periodEnd.IsZero() && periodEnd.After(sub.CurrentPeriodEnd)
	if !allowed(sub.Status, status, extends) {
		m.log.Info("subscription transition ignored", "external_id", externalID, "from", sub.Status, "to", status)
		return sub, nil
	}

	sub.Status = status
	if extends {
		sub.CurrentPeriodEnd = periodEnd
	}
	switch status {
	case models.SubscriptionCanceled:
		// Pro stays until the paid period runs out.
		sub.CancelAtPeriodEnd = true
	case models.SubscriptionActive:
		sub.CancelAtPeriodEnd = false
	}
	if extends && (status == models.SubscriptionActive || status == models.SubscriptionCanceled) {
		if err := m.grantPro(ctx, tx, sub.AccountID, sub.CurrentPeriodEnd); err != nil {
			return nil, err
		}
	}
	if err := m.subs.UpdateStateTx(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	m.log.Info("subscription updated", "external_id", externalID, "status", status, "period_end", sub.CurrentPeriodEnd)
	return sub, nil
}

func (m *Manager) Get(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error) {
	sub, err := m.subs.GetByAccountID(ctx, accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

func (m *Manager) grantPro(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, until time.Time) error {
	err := m.accounts.SetPro(ctx, tx, accountID, until)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("set pro: %w", err)
	}
	return nil
}

// allowed is the forward-only transition table. CANCELED only comes back to
// ACTIVE with a newer paid period.
func allowed(from, to models.SubscriptionStatus, extends bool) bool {
	switch from {
	case models.SubscriptionActive:
		return true
	case models.SubscriptionPastDue:
		return true
	case models.SubscriptionCanceled:
		return to == models.SubscriptionActive && extends
	}
	return false
}

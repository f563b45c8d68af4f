package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqline/backend/internal/models"
)

const subscriptionColumns = `id, account_id, plan_type, status, current_period_start, current_period_end,
	external_id, cancel_at_period_end, created_at, updated_at`

type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(&s.ID, &s.AccountID, &s.PlanType, &s.Status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd,
		&s.ExternalID, &s.CancelAtPeriodEnd, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertActiveTx writes s as the account's single subscription row. An existing
// row for a later period, or for the same period but no longer ACTIVE, is left
// untouched and applied is false.
func (r *SubscriptionRepo) UpsertActiveTx(ctx context.Context, tx pgx.Tx, s *models.Subscription) (applied bool, err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO subscriptions (id, account_id, plan_type, status, current_period_start, current_period_end, external_id, cancel_at_period_end)
		VALUES ($1, $2, $3, 'ACTIVE', $4, $5, $6, FALSE)
		ON CONFLICT (account_id) DO UPDATE SET
			plan_type = EXCLUDED.plan_type,
			status = 'ACTIVE',
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			external_id = EXCLUDED.external_id,
			cancel_at_period_end = FALSE,
			updated_at = now()
		WHERE subscriptions.current_period_end < EXCLUDED.current_period_end
			OR (subscriptions.current_period_end = EXCLUDED.current_period_end AND subscriptions.status = 'ACTIVE')
		RETURNING `+subscriptionColumns,
		s.ID, s.AccountID, s.PlanType, s.CurrentPeriodStart, s.CurrentPeriodEnd, s.ExternalID)
	got, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	*s = *got
	return true, nil
}

func (r *SubscriptionRepo) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error) {
	return scanSubscription(r.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE account_id = $1`, accountID))
}

func (r *SubscriptionRepo) GetByAccountIDTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*models.Subscription, error) {
	return scanSubscription(tx.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE account_id = $1`, accountID))
}

// GetByExternalIDForUpdate locks the subscription row. Call within a transaction.
func (r *SubscriptionRepo) GetByExternalIDForUpdate(ctx context.Context, tx pgx.Tx, externalID string) (*models.Subscription, error) {
	return scanSubscription(tx.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_id = $1 FOR UPDATE`, externalID))
}

func (r *SubscriptionRepo) UpdateStateTx(ctx context.Context, tx pgx.Tx, s *models.Subscription) error {
	_, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET status = $2, current_period_end = $3, cancel_at_period_end = $4, updated_at = now()
		WHERE id = $1
	`, s.ID, s.Status, s.CurrentPeriodEnd, s.CancelAtPeriodEnd)
	return err
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqline/backend/internal/models"
)

const accountColumns = `id, email, display_name, country, is_admin, credit_balance, is_pro, pro_expires_at,
	payment_customer_id, payment_method_token, payment_method_expires_at, created_at, updated_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.Country, &a.IsAdmin, &a.CreditBalance, &a.IsPro, &a.ProExpiresAt,
		&a.PaymentCustomerID, &a.PaymentMethodToken, &a.PaymentMethodExpiresAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, display_name, country, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.DisplayName, a.Country, a.IsAdmin).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetByIDForUpdate locks the account row for update. Call within a transaction.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// DeductCredits atomically deducts amount from account if balance >= amount.
// Returns pgx.ErrNoRows when the balance does not cover amount.
func (r *AccountRepo) DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET credit_balance = credit_balance - $1, updated_at = now()
		WHERE id = $2 AND credit_balance >= $1
		RETURNING credit_balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// AddCredits adds amount to account and returns new balance.
func (r *AccountRepo) AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET credit_balance = credit_balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING credit_balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// SetPro marks the account pro until expiresAt. An expiry already further in
// the future is kept.
func (r *AccountRepo) SetPro(ctx context.Context, tx pgx.Tx, id uuid.UUID, expiresAt time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET is_pro = TRUE, pro_expires_at = GREATEST(COALESCE(pro_expires_at, $2), $2), updated_at = now()
		WHERE id = $1
	`, id, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// LinkCustomer records the processor customer id the first time it is seen.
func (r *AccountRepo) LinkCustomer(ctx context.Context, tx pgx.Tx, id uuid.UUID, customerID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE accounts SET payment_customer_id = $2, updated_at = now()
		WHERE id = $1 AND payment_customer_id IS NULL
	`, id, customerID)
	return err
}

// SetPaymentMethod stores the reusable payment token for the account owning customerID.
func (r *AccountRepo) SetPaymentMethod(ctx context.Context, tx pgx.Tx, customerID, token string, expiresAt *time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET payment_method_token = $2, payment_method_expires_at = $3, updated_at = now()
		WHERE payment_customer_id = $1
	`, customerID, token, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

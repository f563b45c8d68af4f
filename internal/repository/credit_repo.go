package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqline/backend/internal/models"
)

type CreditRepo struct {
	pool *pgxpool.Pool
}

func NewCreditRepo(pool *pgxpool.Pool) *CreditRepo {
	return &CreditRepo{pool: pool}
}

// CreateTx inserts a ledger row inside the given transaction.
func (r *CreditRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.CreditTransaction) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return tx.QueryRow(ctx, `
		INSERT INTO credit_transactions (id, account_id, tx_type, amount, description, external_payment_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, c.ID, c.AccountID, c.Type, c.Amount, c.Description, c.ExternalPaymentID).Scan(&c.CreatedAt)
}

// InsertPurchaseTx inserts c unless a row with the same external payment id
// already exists. inserted is false for the duplicate.
func (r *CreditRepo) InsertPurchaseTx(ctx context.Context, tx pgx.Tx, c *models.CreditTransaction) (inserted bool, err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO credit_transactions (id, account_id, tx_type, amount, description, external_payment_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (external_payment_id) DO NOTHING
		RETURNING created_at
	`, c.ID, c.AccountID, c.Type, c.Amount, c.Description, c.ExternalPaymentID).Scan(&c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByExternalPaymentIDTx returns pgx.ErrNoRows when no row carries the key.
func (r *CreditRepo) GetByExternalPaymentIDTx(ctx context.Context, tx pgx.Tx, externalPaymentID string) (*models.CreditTransaction, error) {
	var c models.CreditTransaction
	err := tx.QueryRow(ctx, `
		SELECT id, account_id, tx_type, amount, description, external_payment_id, created_at
		FROM credit_transactions WHERE external_payment_id = $1
	`, externalPaymentID).Scan(&c.ID, &c.AccountID, &c.Type, &c.Amount, &c.Description, &c.ExternalPaymentID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CreditRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.CreditTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, tx_type, amount, description, external_payment_id, created_at
		FROM credit_transactions WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditTransaction
	for rows.Next() {
		var c models.CreditTransaction
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Type, &c.Amount, &c.Description, &c.ExternalPaymentID, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

// Snapshot reads the cached balance and the ledger sum from one read-only
// snapshot. pgx.ErrNoRows means the account does not exist.
func (r *CreditRepo) Snapshot(ctx context.Context, accountID uuid.UUID) (cached, sum int64, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `SELECT credit_balance FROM accounts WHERE id = $1`, accountID).Scan(&cached); err != nil {
		return 0, 0, err
	}
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE account_id = $1
	`, accountID).Scan(&sum)
	if err != nil {
		return 0, 0, err
	}
	return cached, sum, nil
}

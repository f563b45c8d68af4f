package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqline/backend/internal/models"
)

type FeeRepo struct {
	pool *pgxpool.Pool
}

func NewFeeRepo(pool *pgxpool.Pool) *FeeRepo {
	return &FeeRepo{pool: pool}
}

// CreateTx inserts a fee record. (source, source_id) is unique so a replayed
// confirmation cannot book the same earning twice.
func (r *FeeRepo) CreateTx(ctx context.Context, tx pgx.Tx, f *models.FeeTransaction) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return tx.QueryRow(ctx, `
		INSERT INTO fee_transactions (id, provider_id, payer_id, source, source_id, amount, platform_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, f.ID, f.ProviderID, f.PayerID, f.Source, f.SourceID, f.Amount, f.PlatformFee).Scan(&f.CreatedAt)
}

// SumEarnings returns the provider's fee-adjusted earnings.
func (r *FeeRepo) SumEarnings(ctx context.Context, q Querier, providerID uuid.UUID) (int64, error) {
	var sum int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount - platform_fee), 0) FROM fee_transactions WHERE provider_id = $1
	`, providerID).Scan(&sum)
	return sum, err
}

func (r *FeeRepo) TotalPlatformFee(ctx context.Context) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(platform_fee), 0) FROM fee_transactions`).Scan(&sum)
	return sum, err
}

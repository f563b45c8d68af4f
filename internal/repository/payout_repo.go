package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqline/backend/internal/models"
)

const payoutColumns = `id, provider_id, amount, method, status, requested_at, processed_at, processed_by,
	rejection_reason, external_transfer_id`

type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

func scanPayout(row pgx.Row) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	err := row.Scan(&p.ID, &p.ProviderID, &p.Amount, &p.Method, &p.Status, &p.RequestedAt, &p.ProcessedAt, &p.ProcessedBy,
		&p.RejectionReason, &p.ExternalTransferID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PayoutRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.PayoutRequest) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return tx.QueryRow(ctx, `
		INSERT INTO payout_requests (id, provider_id, amount, method, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING requested_at
	`, p.ID, p.ProviderID, p.Amount, p.Method, p.Status).Scan(&p.RequestedAt)
}

func (r *PayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	return scanPayout(r.pool.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1`, id))
}

// GetByIDForUpdate locks the payout row. Call within a transaction.
func (r *PayoutRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.PayoutRequest, error) {
	return scanPayout(tx.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1 FOR UPDATE`, id))
}

func (r *PayoutRepo) GetByTransferIDForUpdate(ctx context.Context, tx pgx.Tx, transferID string) (*models.PayoutRequest, error) {
	return scanPayout(tx.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE external_transfer_id = $1 FOR UPDATE`, transferID))
}

// UpdateStatusTx persists the mutable workflow fields of p.
func (r *PayoutRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, p *models.PayoutRequest) error {
	_, err := tx.Exec(ctx, `
		UPDATE payout_requests
		SET status = $2, processed_at = $3, processed_by = $4, rejection_reason = $5, external_transfer_id = $6
		WHERE id = $1
	`, p.ID, p.Status, p.ProcessedAt, p.ProcessedBy, p.RejectionReason, p.ExternalTransferID)
	return err
}

// SumCommitted returns the total of payouts that still claim provider earnings:
// everything except REJECTED.
func (r *PayoutRepo) SumCommitted(ctx context.Context, q Querier, providerID uuid.UUID) (int64, error) {
	var sum int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payout_requests
		WHERE provider_id = $1 AND status IN ('REQUESTED', 'PROCESSING', 'COMPLETED')
	`, providerID).Scan(&sum)
	return sum, err
}

// List returns payouts newest first; a nil status returns every status.
func (r *PayoutRepo) List(ctx context.Context, status *models.PayoutStatus, limit int) ([]*models.PayoutRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+payoutColumns+` FROM payout_requests
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY requested_at DESC LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PayoutRequest
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// SumByStatus returns the amount total and row count per status.
func (r *PayoutRepo) SumByStatus(ctx context.Context) (sums, counts map[models.PayoutStatus]int64, err error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COALESCE(SUM(amount), 0), COUNT(*) FROM payout_requests GROUP BY status
	`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	sums = make(map[models.PayoutStatus]int64)
	counts = make(map[models.PayoutStatus]int64)
	for rows.Next() {
		var status models.PayoutStatus
		var sum, count int64
		if err := rows.Scan(&status, &sum, &count); err != nil {
			return nil, nil, err
		}
		sums[status] = sum
		counts[status] = count
	}
	return sums, counts, rows.Err()
}

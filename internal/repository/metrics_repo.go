package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqline/backend/internal/models"
)

// MetricsRepo runs the dashboard rollups. Every query is filtered by the
// owning account's country ($1, empty for all) and, where it applies, by a
// lower time bound ($2, NULL for all time).
type MetricsRepo struct {
	pool *pgxpool.Pool
}

func NewMetricsRepo(pool *pgxpool.Pool) *MetricsRepo {
	return &MetricsRepo{pool: pool}
}

const scopeFilter = `($1::text = '' OR a.country = $1)`

func (r *MetricsRepo) Dashboard(ctx context.Context, country string, since *time.Time) (*models.Dashboard, error) {
	// One read-only snapshot so the figures agree with each other.
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	d := &models.Dashboard{
		Country:  country,
		Since:    since,
		Payouts:  make(map[string]models.StatusTotal),
		Contests: make(map[string]int64),
	}

	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(ct.amount) FILTER (WHERE ct.tx_type = 'PURCHASE'), 0),
		       COALESCE(-SUM(ct.amount) FILTER (WHERE ct.tx_type = 'SPEND'), 0)
		FROM credit_transactions ct
		JOIN accounts a ON a.id = ct.account_id
		WHERE `+scopeFilter+` AND ($2::timestamptz IS NULL OR ct.created_at >= $2)
	`, country, since).Scan(&d.CreditsPurchased, &d.CreditsSpent)
	if err != nil {
		return nil, fmt.Errorf("credits: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM subscriptions s
		JOIN accounts a ON a.id = s.account_id
		WHERE s.status = 'ACTIVE' AND `+scopeFilter, country).Scan(&d.ActiveSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("subscriptions: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM accounts a WHERE a.is_pro AND `+scopeFilter, country).Scan(&d.ProAccounts)
	if err != nil {
		return nil, fmt.Errorf("pro accounts: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(f.platform_fee), 0) FROM fee_transactions f
		JOIN accounts a ON a.id = f.provider_id
		WHERE `+scopeFilter+` AND ($2::timestamptz IS NULL OR f.created_at >= $2)
	`, country, since).Scan(&d.PlatformFees)
	if err != nil {
		return nil, fmt.Errorf("platform fees: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM contest_entries e
		JOIN contests c ON c.id = e.contest_id
		JOIN accounts a ON a.id = c.creator_id
		WHERE `+scopeFilter+` AND ($2::timestamptz IS NULL OR e.entered_at >= $2)
	`, country, since).Scan(&d.EntriesSold)
	if err != nil {
		return nil, fmt.Errorf("entries: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT p.status, COUNT(*), COALESCE(SUM(p.amount), 0) FROM payout_requests p
		JOIN accounts a ON a.id = p.provider_id
		WHERE `+scopeFilter+` AND ($2::timestamptz IS NULL OR p.requested_at >= $2)
		GROUP BY p.status
	`, country, since)
	if err != nil {
		return nil, fmt.Errorf("payouts: %w", err)
	}
	for rows.Next() {
		var status string
		var t models.StatusTotal
		if err := rows.Scan(&status, &t.Count, &t.Amount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("payouts: %w", err)
		}
		d.Payouts[status] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payouts: %w", err)
	}

	rows, err = tx.Query(ctx, `
		SELECT c.status, COUNT(*) FROM contests c
		JOIN accounts a ON a.id = c.creator_id
		WHERE `+scopeFilter+` AND ($2::timestamptz IS NULL OR c.created_at >= $2)
		GROUP BY c.status
	`, country, since)
	if err != nil {
		return nil, fmt.Errorf("contests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("contests: %w", err)
		}
		d.Contests[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contests: %w", err)
	}
	return d, nil
}

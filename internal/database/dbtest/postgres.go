package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqline/backend/internal/database"
)

// Postgres connects to DATABASE_URL, applies the schema and empties every
// table. Tests calling it are skipped when DATABASE_URL is unset.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, dbURL)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err = pool.Exec(ctx, `
		TRUNCATE contest_entries, contest_reservations, contests, fee_transactions, payout_requests,
			subscriptions, processed_payment_events, credit_transactions, accounts CASCADE
	`)
	if err != nil {
		t.Fatalf("reset db: %v", err)
	}
	return pool
}

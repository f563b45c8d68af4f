package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/souqline/backend/internal/models"
)

var (
	// ErrInsufficientBalance is returned when a debit would take the cached balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrNotFound            = errors.New("account not found")
	// ErrBalanceMismatch means the cached balance disagrees with the ledger sum.
	ErrBalanceMismatch = errors.New("balance does not match ledger")
)

// AccountRepo is the slice of the account repository the ledger needs.
type AccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
}

// CreditRepo is the append-only credit transaction store.
type CreditRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.CreditTransaction) error
	InsertPurchaseTx(ctx context.Context, tx pgx.Tx, c *models.CreditTransaction) (bool, error)
	GetByExternalPaymentIDTx(ctx context.Context, tx pgx.Tx, externalPaymentID string) (*models.CreditTransaction, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.CreditTransaction, error)
	// Snapshot returns the cached balance and the ledger sum as of one instant.
	Snapshot(ctx context.Context, accountID uuid.UUID) (cached, sum int64, err error)
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/souqline/backend/internal/database"
	"github.com/souqline/backend/internal/metrics"
	"github.com/souqline/backend/internal/models"
)

// Service owns every credit balance mutation. Each mutation writes exactly one
// CreditTransaction and moves the cached balance by the same signed amount in
// the caller's transaction, so balance == sum(amount) holds after every commit.
type Service interface {
	ApplyPurchase(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, externalPaymentID, description string) (*models.CreditTransaction, error)
	ApplySpend(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error)
	ApplyRefund(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error)
	ApplyAdjustment(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error)

	Spend(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error)
	Refund(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error)
	Adjust(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error)

	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
	History(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.CreditTransaction, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*Reconciliation, error)
}

// Reconciliation compares the cached balance with the ledger sum.
type Reconciliation struct {
	AccountID     uuid.UUID `json:"account_id"`
	CachedBalance int64     `json:"cached_balance"`
	LedgerSum     int64     `json:"ledger_sum"`
}

type service struct {
	db       database.TxBeginner
	accounts AccountRepo
	credits  CreditRepo
	log      *slog.Logger
}

func NewService(db database.TxBeginner, accounts AccountRepo, credits CreditRepo, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{db: db, accounts: accounts, credits: credits, log: log}
}

var _ Service = (*service)(nil)

// ApplyPurchase books purchased credits once per external payment id. A replay
// returns the row written by the first delivery and leaves the balance alone.
func (s *service) ApplyPurchase(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, externalPaymentID, description string) (*models.CreditTransaction, error) {
	if amount <= 0 || externalPaymentID == "" {
		return nil, ErrInvalidAmount
	}
	if existing, err := s.credits.GetByExternalPaymentIDTx(ctx, tx, externalPaymentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, err := s.lock(ctx, tx, accountID); err != nil {
		return nil, err
	}
	entry := &models.CreditTransaction{
		ID:                uuid.New(),
		AccountID:         accountID,
		Type:              models.CreditTxPurchase,
		Amount:            amount,
		Description:       description,
		ExternalPaymentID: &externalPaymentID,
	}
	inserted, err := s.credits.InsertPurchaseTx(ctx, tx, entry)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return s.credits.GetByExternalPaymentIDTx(ctx, tx, externalPaymentID)
	}
	if _, err := s.accounts.AddCredits(ctx, tx, accountID, amount); err != nil {
		return nil, err
	}
	metrics.CreditsMoved.WithLabelValues(string(models.CreditTxPurchase)).Add(float64(amount))
	return entry, nil
}

func (s *service) ApplySpend(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := s.debit(ctx, tx, accountID, amount); err != nil {
		return nil, err
	}
	entry := &models.CreditTransaction{
		ID: uuid.New(), AccountID: accountID, Type: models.CreditTxSpend, Amount: -amount, Description: description,
	}
	if err := s.credits.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	metrics.CreditsMoved.WithLabelValues(string(models.CreditTxSpend)).Add(float64(amount))
	return entry, nil
}

func (s *service) ApplyRefund(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := s.lock(ctx, tx, accountID); err != nil {
		return nil, err
	}
	if _, err := s.accounts.AddCredits(ctx, tx, accountID, amount); err != nil {
		return nil, err
	}
	entry := &models.CreditTransaction{
		ID: uuid.New(), AccountID: accountID, Type: models.CreditTxRefund, Amount: amount, Description: description,
	}
	if err := s.credits.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	metrics.CreditsMoved.WithLabelValues(string(models.CreditTxRefund)).Add(float64(amount))
	return entry, nil
}

// ApplyAdjustment books a signed admin correction. Negative adjustments obey
// the same non-negative balance rule as spends.
func (s *service) ApplyAdjustment(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if amount < 0 {
		if err := s.debit(ctx, tx, accountID, -amount); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.lock(ctx, tx, accountID); err != nil {
			return nil, err
		}
		if _, err := s.accounts.AddCredits(ctx, tx, accountID, amount); err != nil {
			return nil, err
		}
	}
	entry := &models.CreditTransaction{
		ID: uuid.New(), AccountID: accountID, Type: models.CreditTxAdjustment, Amount: amount, Description: description,
	}
	if err := s.credits.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	magnitude := amount
	if magnitude < 0 {
		magnitude = -magnitude
	}
	metrics.CreditsMoved.WithLabelValues(string(models.CreditTxAdjustment)).Add(float64(magnitude))
	return entry, nil
}

func (s *service) Spend(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*models.CreditTransaction, error) {
		return s.ApplySpend(ctx, tx, accountID, amount, description)
	})
}

func (s *service) Refund(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*models.CreditTransaction, error) {
		return s.ApplyRefund(ctx, tx, accountID, amount, description)
	})
}

func (s *service) Adjust(ctx context.Context, accountID uuid.UUID, amount int64, description string) (*models.CreditTransaction, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*models.CreditTransaction, error) {
		return s.ApplyAdjustment(ctx, tx, accountID, amount, description)
	})
}

func (s *service) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return acc.CreditBalance, nil
}

func (s *service) History(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.CreditTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.credits.ListByAccountID(ctx, accountID, limit)
}

// Reconcile returns ErrBalanceMismatch together with the report when the two
// figures disagree.
func (s *service) Reconcile(ctx context.Context, accountID uuid.UUID) (*Reconciliation, error) {
	cached, sum, err := s.credits.Snapshot(ctx, accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger snapshot: %w", err)
	}
	rec := &Reconciliation{AccountID: accountID, CachedBalance: cached, LedgerSum: sum}
	if cached != sum {
		s.log.Error("credit balance mismatch", "account_id", accountID, "cached", cached, "ledger", sum)
		return rec, ErrBalanceMismatch
	}
	return rec, nil
}

// lock takes the account row lock so ledger writes for one account serialize.
func (s *service) lock(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*models.Account, error) {
	acc, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return acc, nil
}

func (s *service) debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error {
	acc, err := s.lock(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if acc.CreditBalance < amount {
		metrics.InsufficientBalance.Inc()
		return ErrInsufficientBalance
	}
	if _, err := s.accounts.DeductCredits(ctx, tx, accountID, amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.InsufficientBalance.Inc()
			return ErrInsufficientBalance
		}
		return err
	}
	return nil
}

func (s *service) inTx(ctx context.Context, fn func(tx pgx.Tx) (*models.CreditTransaction, error)) (*models.CreditTransaction, error) {
	var out *models.CreditTransaction
	err := database.InTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		out, err = fn(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

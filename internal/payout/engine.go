package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/souqline/backend/internal/database"
	"github.com/souqline/backend/internal/metrics"
	"github.com/souqline/backend/internal/models"
	"github.com/souqline/backend/internal/repository"
)

var (
	ErrNotFound            = errors.New("payout not found")
	ErrAccountNotFound     = errors.New("provider account not found")
	ErrInvalidState        = errors.New("payout is not in a state that allows this action")
	ErrInsufficientBalance = errors.New("amount exceeds available earnings")
	ErrInvalidAmount       = errors.New("invalid payout amount")
	ErrInvalidMethod       = errors.New("unsupported payout method")
	ErrReasonRequired      = errors.New("rejection reason is required")
	ErrTransferIDRequired  = errors.New("transfer id is required")
	ErrInvalidFee          = errors.New("invalid fee transaction")
)

type Repo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.PayoutRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.PayoutRequest, error)
	GetByTransferIDForUpdate(ctx context.Context, tx pgx.Tx, transferID string) (*models.PayoutRequest, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, p *models.PayoutRequest) error
	SumCommitted(ctx context.Context, q repository.Querier, providerID uuid.UUID) (int64, error)
	List(ctx context.Context, status *models.PayoutStatus, limit int) ([]*models.PayoutRequest, error)
	SumByStatus(ctx context.Context) (sums, counts map[models.PayoutStatus]int64, err error)
}

type FeeRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, f *models.FeeTransaction) error
	SumEarnings(ctx context.Context, q repository.Querier, providerID uuid.UUID) (int64, error)
	TotalPlatformFee(ctx context.Context) (int64, error)
}

type AccountLocker interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
}

// Engine runs the provider payout workflow:
//
//	REQUESTED -> COMPLETED | REJECTED | PROCESSING
//	PROCESSING -> COMPLETED (processor transfer confirmation)
//
// Pending requests count against available earnings from the moment they are
// created, so approval never has to re-check the balance.
type Engine struct {
	db       database.TxBeginner
	payouts  Repo
	fees     FeeRepo
	accounts AccountLocker
	log      *slog.Logger
	now      func() time.Time
}

func NewEngine(db database.TxBeginner, payouts Repo, fees FeeRepo, accounts AccountLocker, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{db: db, payouts: payouts, fees: fees, accounts: accounts, log: log, now: time.Now}
}

// PlatformFee is the platform's cut of amount at percent, rounded down.
func PlatformFee(amount int64, percent int) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return amount
	}
	return amount * int64(percent) / 100
}

func validMethod(m string) bool {
	switch m {
	case models.PayoutMethodBankTransfer, models.PayoutMethodPayPal, models.PayoutMethodCard:
		return true
	}
	return false
}

// RequestPayout locks the provider row so concurrent requests see each
// other's reservations.
func (e *Engine) RequestPayout(ctx context.Context, providerID uuid.UUID, amount int64, method string) (*models.PayoutRequest, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !validMethod(method) {
		return nil, ErrInvalidMethod
	}
	p := &models.PayoutRequest{
		ID:         uuid.New(),
		ProviderID: providerID,
		Amount:     amount,
		Method:     method,
		Status:     models.PayoutRequested,
	}
	err := database.InTx(ctx, e.db, func(tx pgx.Tx) error {
		if _, err := e.accounts.GetByIDForUpdate(ctx, tx, providerID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock provider: %w", err)
		}
		available, err := e.available(ctx, tx, providerID)
		if err != nil {
			return err
		}
		if amount > available {
			return ErrInsufficientBalance
		}
		return e.payouts.CreateTx(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	metrics.PayoutTransitions.WithLabelValues(string(models.PayoutRequested)).Inc()
	e.log.Info("payout requested", "payout_id", p.ID, "provider_id", providerID, "amount", amount, "method", method)
	return p, nil
}

func (e *Engine) Approve(ctx context.Context, payoutID, adminID uuid.UUID) (*models.PayoutRequest, error) {
	return e.transition(ctx, payoutID, func(p *models.PayoutRequest) error {
		if p.Status != models.PayoutRequested {
			return ErrInvalidState
		}
		now := e.now()
		p.Status = models.PayoutCompleted
		p.ProcessedAt = &now
		p.ProcessedBy = &adminID
		return nil
	})
}

func (e *Engine) Reject(ctx context.Context, payoutID, adminID uuid.UUID, reason string) (*models.PayoutRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return e.transition(ctx, payoutID, func(p *models.PayoutRequest) error {
		if p.Status != models.PayoutRequested {
			return ErrInvalidState
		}
		now := e.now()
		p.Status = models.PayoutRejected
		p.ProcessedAt = &now
		p.ProcessedBy = &adminID
		p.RejectionReason = &reason
		return nil
	})
}

// StartProcessing hands an approved-for-transfer payout to the processor. It
// completes when the processor confirms the transfer.
func (e *Engine) StartProcessing(ctx context.Context, payoutID, adminID uuid.UUID, transferID string) (*models.PayoutRequest, error) {
	transferID = strings.TrimSpace(transferID)
	if transferID == "" {
		return nil, ErrTransferIDRequired
	}
	return e.transition(ctx, payoutID, func(p *models.PayoutRequest) error {
		if p.Status != models.PayoutRequested {
			return ErrInvalidState
		}
		p.Status = models.PayoutProcessing
		p.ProcessedBy = &adminID
		p.ExternalTransferID = &transferID
		return nil
	})
}

// ConfirmTransfer completes a PROCESSING payout. A repeated confirmation of a
// COMPLETED payout is a no-op.
func (e *Engine) ConfirmTransfer(ctx context.Context, tx pgx.Tx, transferID string) (*models.PayoutRequest, error) {
	p, err := e.payouts.GetByTransferIDForUpdate(ctx, tx, transferID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case models.PayoutCompleted:
		return p, nil
	case models.PayoutProcessing:
	default:
		return nil, ErrInvalidState
	}
	now := e.now()
	p.Status = models.PayoutCompleted
	p.ProcessedAt = &now
	if err := e.payouts.UpdateStatusTx(ctx, tx, p); err != nil {
		return nil, err
	}
	metrics.PayoutTransitions.WithLabelValues(string(models.PayoutCompleted)).Inc()
	return p, nil
}

// RecordFee books a provider earning inside the caller's transaction.
func (e *Engine) RecordFee(ctx context.Context, tx pgx.Tx, fee *models.FeeTransaction) error {
	if fee.Amount < 0 || fee.PlatformFee < 0 || fee.PlatformFee > fee.Amount || fee.Source == "" {
		return ErrInvalidFee
	}
	return e.fees.CreateTx(ctx, tx, fee)
}

func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	p, err := e.payouts.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (e *Engine) List(ctx context.Context, status *models.PayoutStatus) ([]*models.PayoutRequest, error) {
	return e.payouts.List(ctx, status, 200)
}

func (e *Engine) Summary(ctx context.Context) (*models.PayoutSummary, error) {
	sums, counts, err := e.payouts.SumByStatus(ctx)
	if err != nil {
		return nil, err
	}
	fees, err := e.fees.TotalPlatformFee(ctx)
	if err != nil {
		return nil, err
	}
	return &models.PayoutSummary{ByStatus: sums, CountByStatus: counts, TotalPlatformFee: fees}, nil
}

// Available returns earnings not yet claimed by a pending or paid payout.
func (e *Engine) Available(ctx context.Context, providerID uuid.UUID) (int64, error) {
	var available int64
	err := database.InTx(ctx, e.db, func(tx pgx.Tx) error {
		var err error
		available, err = e.available(ctx, tx, providerID)
		return err
	})
	return available, err
}

func (e *Engine) available(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) (int64, error) {
	earned, err := e.fees.SumEarnings(ctx, tx, providerID)
	if err != nil {
		return 0, fmt.Errorf("sum earnings: %w", err)
	}
	committed, err := e.payouts.SumCommitted(ctx, tx, providerID)
	if err != nil {
		return 0, fmt.Errorf("sum payouts: %w", err)
	}
	return earned - committed, nil
}

func (e *Engine) transition(ctx context.Context, payoutID uuid.UUID, apply func(p *models.PayoutRequest) error) (*models.PayoutRequest, error) {
	var p *models.PayoutRequest
	err := database.InTx(ctx, e.db, func(tx pgx.Tx) error {
		var err error
		p, err = e.payouts.GetByIDForUpdate(ctx, tx, payoutID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := apply(p); err != nil {
			return err
		}
		return e.payouts.UpdateStatusTx(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	metrics.PayoutTransitions.WithLabelValues(string(p.Status)).Inc()
	e.log.Info("payout transitioned", "payout_id", p.ID, "status", p.Status)
	return p, nil
}

package contest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/souqline/backend/internal/models"
	"github.com/souqline/backend/internal/repository"
)

var (
	ErrNotFound            = errors.New("contest not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidContest      = errors.New("invalid contest")
	ErrContestNotOpen      = errors.New("contest is not open")
	ErrSoldOut             = errors.New("contest is sold out")
	ErrOwnContest          = errors.New("creators cannot enter their own contest")
	ErrInvalidState        = errors.New("contest is not in a state that allows this action")
	ErrAlreadyResolved     = errors.New("contest already resolved")
	ErrNotSoldOut          = errors.New("contest still has open slots")
	ErrReservationsPending = errors.New("contest has unconfirmed reservations")
	ErrNoEntries           = errors.New("contest has no entries")
	ErrHasEntries          = errors.New("contest has entries or pending reservations")
	// ErrReservationExpired is returned when payment arrives for a hold that
	// lapsed and whose slot has since been taken.
	ErrReservationExpired = errors.New("reservation expired")
	ErrCheckoutFailed     = errors.New("checkout could not be created")
)

// Repo is the contest store. Methods taking a pgx.Tx run in the caller's
// transaction.
type Repo interface {
	Create(ctx context.Context, c *models.Contest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contest, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contest, error)
	List(ctx context.Context, status *models.ContestStatus, limit int) ([]*models.Contest, error)
	ReserveSlot(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	ReleaseSlot(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	UpdateDetails(ctx context.Context, tx pgx.Tx, c *models.Contest) error
	SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.ContestStatus) error
	MarkResolved(ctx context.Context, tx pgx.Tx, id, winnerID uuid.UUID, at time.Time) error
	Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error

	CreateReservation(ctx context.Context, tx pgx.Tx, res *models.SlotReservation) error
	GetReservationForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.SlotReservation, error)
	SetReservationStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.ReservationStatus) error
	SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error
	CountHeld(ctx context.Context, tx pgx.Tx, contestID uuid.UUID) (int, error)
	ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	CreateEntry(ctx context.Context, tx pgx.Tx, e *models.ContestEntry) error
	GetEntryByReservation(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID) (*models.ContestEntry, error)
	CountEntries(ctx context.Context, q repository.Querier, contestID uuid.UUID) (int, error)
	ListEntries(ctx context.Context, tx pgx.Tx, contestID uuid.UUID) ([]*models.ContestEntry, error)
	MarkWinner(ctx context.Context, tx pgx.Tx, entryID uuid.UUID) error
}

// Checkout creates the hosted payment page for a held slot.
type Checkout interface {
	CreateCheckout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error)
}

// FeeRecorder books the creator's earning for a confirmed entry.
type FeeRecorder interface {
	RecordFee(ctx context.Context, tx pgx.Tx, fee *models.FeeTransaction) error
}

// Scheduler enqueues background work in the caller's transaction so the job
// exists exactly when the write that needs it commits.
type Scheduler interface {
	ScheduleReleaseTx(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID, at time.Time) error
	ScheduleResolveTx(ctx context.Context, tx pgx.Tx, contestID uuid.UUID) error
}

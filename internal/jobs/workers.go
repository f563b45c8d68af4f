package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/souqline/backend/internal/contest"
	"github.com/souqline/backend/internal/models"
)

// Contests is the part of the contest engine the workers drive.
type Contests interface {
	ReleaseExpired(ctx context.Context, reservationID uuid.UUID) (bool, error)
	SweepExpired(ctx context.Context) (int, error)
	Resolve(ctx context.Context, id uuid.UUID) (*models.ContestEntry, error)
}

type Refunder interface {
	Refund(ctx context.Context, paymentID, idempotencyKey string) error
}

// NewWorkers registers every worker this service runs.
func NewWorkers(contests Contests, refunds Refunder, log *slog.Logger) *river.Workers {
	if log == nil {
		log = slog.Default()
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &ReleaseReservationWorker{contests: contests, log: log})
	river.AddWorker(workers, &ResolveContestWorker{contests: contests, log: log})
	river.AddWorker(workers, &RefundPaymentWorker{refunds: refunds, log: log})
	river.AddWorker(workers, &SweepReservationsWorker{contests: contests, log: log})
	return workers
}

// PeriodicJobs returns the reservation sweep, run every interval.
func PeriodicJobs(interval time.Duration) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) { return SweepReservationsArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

type ReleaseReservationWorker struct {
	river.WorkerDefaults[ReleaseReservationArgs]
	contests Contests
	log      *slog.Logger
}

func (w *ReleaseReservationWorker) Work(ctx context.Context, job *river.Job[ReleaseReservationArgs]) error {
	released, err := w.contests.ReleaseExpired(ctx, job.Args.ReservationID)
	if err != nil {
		return fmt.Errorf("release reservation %s: %w", job.Args.ReservationID, err)
	}
	if !released {
		w.log.Debug("reservation already settled", "reservation_id", job.Args.ReservationID)
	}
	return nil
}

type ResolveContestWorker struct {
	river.WorkerDefaults[ResolveContestArgs]
	contests Contests
	log      *slog.Logger
}

func (w *ResolveContestWorker) Work(ctx context.Context, job *river.Job[ResolveContestArgs]) error {
	_, err := w.contests.Resolve(ctx, job.Args.ContestID)
	switch {
	case err == nil, errors.Is(err, contest.ErrAlreadyResolved):
		return nil
	case errors.Is(err, contest.ErrNotFound), errors.Is(err, contest.ErrNotSoldOut), errors.Is(err, contest.ErrNoEntries):
		// Retrying cannot change these; the creator or an admin resolves by hand.
		w.log.Warn("auto-resolve skipped", "contest_id", job.Args.ContestID, "error", err)
		return river.JobCancel(err)
	default:
		return fmt.Errorf("resolve contest %s: %w", job.Args.ContestID, err)
	}
}

type RefundPaymentWorker struct {
	river.WorkerDefaults[RefundPaymentArgs]
	refunds Refunder
	log     *slog.Logger
}

func (w *RefundPaymentWorker) Work(ctx context.Context, job *river.Job[RefundPaymentArgs]) error {
	if err := w.refunds.Refund(ctx, job.Args.PaymentID, "refund-"+job.Args.PaymentID); err != nil {
		return err
	}
	w.log.Info("payment refunded", "payment_id", job.Args.PaymentID, "reason", job.Args.Reason)
	return nil
}

type SweepReservationsWorker struct {
	river.WorkerDefaults[SweepReservationsArgs]
	contests Contests
	log      *slog.Logger
}

func (w *SweepReservationsWorker) Work(ctx context.Context, _ *river.Job[SweepReservationsArgs]) error {
	n, err := w.contests.SweepExpired(ctx)
	if n > 0 {
		w.log.Info("swept expired reservations", "released", n)
	}
	return err
}

package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

var ErrNotBound = errors.New("job enqueuer is not bound to a river client")

type insertTxFunc func(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) error

// Enqueuer inserts jobs inside the caller's transaction, so a job exists
// only if the business write that planned it commits. The River client
// needs the workers and the workers need the services, which in turn need
// the Enqueuer, so the client is attached afterwards with Bind.
type Enqueuer struct {
	mu     sync.RWMutex
	insert insertTxFunc
}

func NewEnqueuer() *Enqueuer {
	return &Enqueuer{}
}

func (e *Enqueuer) Bind(client *river.Client[pgx.Tx]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.insert = func(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) error {
		_, err := client.InsertTx(ctx, tx, args, opts)
		return err
	}
}

func (e *Enqueuer) insertTx(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) error {
	e.mu.RLock()
	fn := e.insert
	e.mu.RUnlock()
	if fn == nil {
		return ErrNotBound
	}
	return fn(ctx, tx, args, opts)
}

func (e *Enqueuer) ScheduleReleaseTx(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID, at time.Time) error {
	return e.insertTx(ctx, tx, ReleaseReservationArgs{ReservationID: reservationID}, &river.InsertOpts{ScheduledAt: at})
}

func (e *Enqueuer) ScheduleResolveTx(ctx context.Context, tx pgx.Tx, contestID uuid.UUID) error {
	return e.insertTx(ctx, tx, ResolveContestArgs{ContestID: contestID}, nil)
}

func (e *Enqueuer) EnqueueRefundTx(ctx context.Context, tx pgx.Tx, paymentID, reason string) error {
	return e.insertTx(ctx, tx, RefundPaymentArgs{PaymentID: paymentID, Reason: reason}, nil)
}

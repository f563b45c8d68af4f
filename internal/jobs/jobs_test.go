package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/souqline/backend/internal/contest"
	"github.com/souqline/backend/internal/database/dbtest"
	"github.com/souqline/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeContests struct {
	released   []uuid.UUID
	releaseOK  bool
	resolveErr error
	resolved   []uuid.UUID
	swept      int
	sweepErr   error
}

func (f *fakeContests) ReleaseExpired(_ context.Context, id uuid.UUID) (bool, error) {
	f.released = append(f.released, id)
	return f.releaseOK, nil
}

func (f *fakeContests) SweepExpired(context.Context) (int, error) { return f.swept, f.sweepErr }

func (f *fakeContests) Resolve(_ context.Context, id uuid.UUID) (*models.ContestEntry, error) {
	f.resolved = append(f.resolved, id)
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &models.ContestEntry{ContestID: id, IsWinner: true}, nil
}

type fakeRefunder struct {
	payment, key string
	err          error
}

func (f *fakeRefunder) Refund(_ context.Context, paymentID, key string) error {
	f.payment, f.key = paymentID, key
	return f.err
}

type inserted struct {
	args river.JobArgs
	opts *river.InsertOpts
}

func recordingEnqueuer() (*Enqueuer, *[]inserted) {
	var got []inserted
	e := NewEnqueuer()
	e.insert = func(_ context.Context, _ pgx.Tx, args river.JobArgs, opts *river.InsertOpts) error {
		got = append(got, inserted{args: args, opts: opts})
		return nil
	}
	return e, &got
}

// ---------------------------------------------------------------------------
// Enqueuer
// ---------------------------------------------------------------------------

func TestEnqueuer_Unbound(t *testing.T) {
	err := NewEnqueuer().ScheduleResolveTx(context.Background(), dbtest.NoopTx{}, uuid.New())
	if !errors.Is(err, ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
}

func TestEnqueuer_ScheduleRelease(t *testing.T) {
	e, got := recordingEnqueuer()
	id := uuid.New()
	at := time.Now().Add(15 * time.Minute)

	if err := e.ScheduleReleaseTx(context.Background(), dbtest.NoopTx{}, id, at); err != nil {
		t.Fatalf("ScheduleReleaseTx: %v", err)
	}
	if len(*got) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(*got))
	}
	args, ok := (*got)[0].args.(ReleaseReservationArgs)
	if !ok || args.ReservationID != id {
		t.Errorf("args = %#v", (*got)[0].args)
	}
	if opts := (*got)[0].opts; opts == nil || !opts.ScheduledAt.Equal(at) {
		t.Errorf("expected job scheduled at %v, got %+v", at, opts)
	}
}

func TestEnqueuer_ResolveAndRefund(t *testing.T) {
	e, got := recordingEnqueuer()
	cid := uuid.New()
	if err := e.ScheduleResolveTx(context.Background(), dbtest.NoopTx{}, cid); err != nil {
		t.Fatal(err)
	}
	if err := e.EnqueueRefundTx(context.Background(), dbtest.NoopTx{}, "pi_1", "sold out"); err != nil {
		t.Fatal(err)
	}
	if a := (*got)[0].args.(ResolveContestArgs); a.ContestID != cid {
		t.Errorf("resolve args = %+v", a)
	}
	if a := (*got)[1].args.(RefundPaymentArgs); a.PaymentID != "pi_1" || a.Reason != "sold out" {
		t.Errorf("refund args = %+v", a)
	}
	if !(ResolveContestArgs{}).InsertOpts().UniqueOpts.ByArgs {
		t.Error("resolve jobs must be unique by args")
	}
}

// ---------------------------------------------------------------------------
// Workers
// ---------------------------------------------------------------------------

func TestReleaseReservationWorker(t *testing.T) {
	f := &fakeContests{}
	w := &ReleaseReservationWorker{contests: f, log: discardLogger()}
	id := uuid.New()
	if err := w.Work(context.Background(), &river.Job[ReleaseReservationArgs]{Args: ReleaseReservationArgs{ReservationID: id}}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if len(f.released) != 1 || f.released[0] != id {
		t.Errorf("released = %v", f.released)
	}
}

func TestResolveContestWorker(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"resolved", nil, false},
		{"already resolved", contest.ErrAlreadyResolved, false},
		{"not sold out", contest.ErrNotSoldOut, true},
		{"transient", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := &ResolveContestWorker{contests: &fakeContests{resolveErr: tc.err}, log: discardLogger()}
			err := w.Work(context.Background(), &river.Job[ResolveContestArgs]{Args: ResolveContestArgs{ContestID: uuid.New()}})
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestRefundPaymentWorker_UsesStableIdempotencyKey(t *testing.T) {
	r := &fakeRefunder{}
	w := &RefundPaymentWorker{refunds: r, log: discardLogger()}
	job := &river.Job[RefundPaymentArgs]{Args: RefundPaymentArgs{PaymentID: "pi_9", Reason: "expired"}}
	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if r.payment != "pi_9" || r.key != "refund-pi_9" {
		t.Errorf("refund called with %q / %q", r.payment, r.key)
	}

	r.err = errors.New("processor returned 503")
	if err := w.Work(context.Background(), job); err == nil {
		t.Error("expected processor failure to be retried")
	}
}

func TestSweepReservationsWorker(t *testing.T) {
	boom := errors.New("db down")
	w := &SweepReservationsWorker{contests: &fakeContests{swept: 2, sweepErr: boom}, log: discardLogger()}
	if err := w.Work(context.Background(), &river.Job[SweepReservationsArgs]{}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestPeriodicJobs(t *testing.T) {
	if got := PeriodicJobs(time.Minute); len(got) != 1 {
		t.Fatalf("expected one periodic job, got %d", len(got))
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

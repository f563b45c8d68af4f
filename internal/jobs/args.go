package jobs

import (
	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// ReleaseReservationArgs frees a contest slot whose checkout hold lapsed.
// Scheduled at the hold's expiry.
type ReleaseReservationArgs struct {
	ReservationID uuid.UUID `json:"reservation_id"`
}

func (ReleaseReservationArgs) Kind() string { return "contest_release_reservation" }

// ResolveContestArgs draws the winner of a sold-out contest.
type ResolveContestArgs struct {
	ContestID uuid.UUID `json:"contest_id"`
}

func (ResolveContestArgs) Kind() string { return "contest_resolve" }

func (ResolveContestArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{UniqueOpts: river.UniqueOpts{ByArgs: true}}
}

// RefundPaymentArgs returns a captured payment that could not be honoured.
type RefundPaymentArgs struct {
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

func (RefundPaymentArgs) Kind() string { return "payment_refund" }

func (RefundPaymentArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{UniqueOpts: river.UniqueOpts{ByArgs: true}}
}

// SweepReservationsArgs is the periodic backstop for missed release jobs.
type SweepReservationsArgs struct{}

func (SweepReservationsArgs) Kind() string { return "contest_sweep_reservations" }

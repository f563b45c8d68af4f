package models

import (
	"time"

	"github.com/google/uuid"
)

type ContestStatus string

const (
	ContestOpen     ContestStatus = "OPEN"
	ContestClosed   ContestStatus = "CLOSED"
	ContestResolved ContestStatus = "RESOLVED"
)

type Contest struct {
	ID               uuid.UUID     `json:"id"`
	CreatorID        uuid.UUID     `json:"creator_id"`
	Title            string        `json:"title"`
	PrizeDescription string        `json:"prize_description"`
	TotalSlots       int           `json:"total_slots"`
	SlotPrice        int64         `json:"slot_price"`
	SlotsTaken       int           `json:"slots_taken"`
	Status           ContestStatus `json:"status"`
	WinnerID         *uuid.UUID    `json:"winner_id,omitempty"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "HELD"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// SlotReservation holds one contest slot between Enter and payment
// confirmation. A HELD reservation counts against the contest capacity until
// it is confirmed or released.
type SlotReservation struct {
	ID                uuid.UUID         `json:"id"`
	ContestID         uuid.UUID         `json:"contest_id"`
	ParticipantID     uuid.UUID         `json:"participant_id"`
	Status            ReservationStatus `json:"status"`
	ExpiresAt         time.Time         `json:"expires_at"`
	CheckoutSessionID *string           `json:"checkout_session_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

type ContestEntry struct {
	ID            uuid.UUID `json:"id"`
	ContestID     uuid.UUID `json:"contest_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	EntryFeePaid  int64     `json:"entry_fee_paid"`
	IsWinner      bool      `json:"is_winner"`
	EnteredAt     time.Time `json:"entered_at"`
}

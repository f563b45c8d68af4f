package contest

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/souqline/backend/internal/database"
	"github.com/souqline/backend/internal/metrics"
	"github.com/souqline/backend/internal/models"
	"github.com/souqline/backend/internal/payout"
)

const DefaultReservationTTL = 15 * time.Minute

type Config struct {
	ReservationTTL     time.Duration
	PlatformFeePercent int
}

// View is a contest with its live counters.
type View struct {
	*models.Contest
	Entries int `json:"entries"`
	Held    int `json:"held"`
}

// EnterResult is what a participant gets back from Enter. Paid contests
// return a RedirectURL; free contests return the confirmed Entry.
type EnterResult struct {
	Reservation *models.SlotReservation `json:"reservation"`
	RedirectURL string                  `json:"redirect_url,omitempty"`
	Entry       *models.ContestEntry    `json:"entry,omitempty"`
}

// Patch holds the editable contest fields. Slot count and price are fixed at
// creation.
type Patch struct {
	Title            *string `json:"title"`
	PrizeDescription *string `json:"prize_description"`
}

// Engine sells contest slots with a two-phase protocol: Enter holds a slot
// for ReservationTTL, Confirm turns the hold into an entry once payment
// arrives, and holds that lapse are released by a scheduled job. Capacity is
// enforced by the database, never by in-process locks.
type Engine struct {
	db        database.TxBeginner
	repo      Repo
	checkout  Checkout
	fees      FeeRecorder
	scheduler Scheduler
	cfg       Config
	log       *slog.Logger
	now       func() time.Time
	pick      func(n int) (int, error)
}

func NewEngine(db database.TxBeginner, repo Repo, checkout Checkout, fees FeeRecorder, scheduler Scheduler, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = DefaultReservationTTL
	}
	return &Engine{
		db:        db,
		repo:      repo,
		checkout:  checkout,
		fees:      fees,
		scheduler: scheduler,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		pick:      cryptoPick,
	}
}

func (e *Engine) Create(ctx context.Context, creatorID uuid.UUID, title, prize string, totalSlots int, slotPrice int64) (*models.Contest, error) {
	title = strings.TrimSpace(title)
	if title == "" || totalSlots <= 0 || slotPrice < 0 {
		return nil, ErrInvalidContest
	}
	c := &models.Contest{
		ID:               uuid.New(),
		CreatorID:        creatorID,
		Title:            title,
		PrizeDescription: strings.TrimSpace(prize),
		TotalSlots:       totalSlots,
		SlotPrice:        slotPrice,
		Status:           models.ContestOpen,
	}
	if err := e.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	e.log.Info("contest created", "contest_id", c.ID, "creator_id", creatorID, "slots", totalSlots, "price", slotPrice)
	return c, nil
}

func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	c, err := e.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v := &View{Contest: c}
	err = database.InTx(ctx, e.db, func(tx pgx.Tx) error {
		if v.Entries, err = e.repo.CountEntries(ctx, tx, id); err != nil {
			return err
		}
		v.Held, err = e.repo.CountHeld(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) List(ctx context.Context, status *models.ContestStatus) ([]*models.Contest, error) {
	return e.repo.List(ctx, status, 100)
}

// Enter reserves one slot for participantID. The checkout is created after the
// reservation commits; if that fails the slot is handed back at once.
func (e *Engine) Enter(ctx context.Context, contestID, participantID uuid.UUID) (*EnterResult, error) {
	var (
		c   *models.Contest
		res *models.SlotReservation
		out = &EnterResult{}
	)
	err := database.InTx(ctx, e.db, func(tx pgx.Tx) error {
		var err error
		c, err = e.repo.GetForUpdate(ctx, tx, contestID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if c.CreatorID == participantID {
			return ErrOwnContest
		}
		if c.Status != models.ContestOpen {
			return ErrContestNotOpen
		}
		ok, err := e.repo.ReserveSlot(ctx, tx, contestID)
		if err != nil {
			if database.IsCheckViolation(err) {
				return ErrSoldOut
			}
			return fmt.Errorf("reserve slot: %w", err)
		}
		if !ok {
			return ErrSoldOut
		}

		res = &models.SlotReservation{
			ID:            uuid.New(),
			ContestID:     contestID,
			ParticipantID: participantID,
			Status:        models.ReservationHeld,
			ExpiresAt:     e.now().Add(e.cfg.ReservationTTL),
		}
		if err := e.repo.CreateReservation(ctx, tx, res); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		if c.SlotPrice == 0 {
			out.Entry, err = e.confirmHeld(ctx, tx, c, res, "", 0)
			return err
		}
		return e.scheduler.ScheduleReleaseTx(ctx, tx, res.ID, res.ExpiresAt)
	})
	if err != nil {
		if errors.Is(err, ErrSoldOut) {
			metrics.ContestSlots.WithLabelValues("sold_out").Inc()
		}
		return nil, err
	}
	out.Reservation = res
	if out.Entry != nil {
		metrics.ContestSlots.WithLabelValues("confirmed").Inc()
		e.log.Info("free contest entry confirmed", "contest_id", contestID, "participant_id", participantID)
		return out, nil
	}
	metrics.ContestSlots.WithLabelValues("held").Inc()

	session, err := e.checkout.CreateCheckout(ctx, models.CheckoutRequest{
		AccountID:   participantID.String(),
		Amount:      c.SlotPrice,
		Description: "Contest entry: " + c.Title,
		Metadata: map[string]string{
			"purchaseType":  models.PurchaseContestEntry,
			"reservationId": res.ID.String(),
			"contestId":     contestID.String(),
			"userId":        participantID.String(),
		},
		IdempotencyKey: res.ID.String(),
	})
	if err != nil {
		e.log.Error("checkout creation failed, releasing slot", "reservation_id", res.ID, "error", err)
		if _, relErr := e.release(ctx, res.ID, false); relErr != nil {
			e.log.Error("release after checkout failure", "reservation_id", res.ID, "error", relErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
	}
	if err := e.repo.SetCheckoutSession(ctx, res.ID, session.ID); err != nil {
		e.log.Warn("store checkout session id", "reservation_id", res.ID, "error", err)
	}
	res.CheckoutSessionID = &session.ID
	out.RedirectURL = session.RedirectURL
	return out, nil
}

// Confirm is the payment side of Enter, run in the gateway's transaction. It
// is idempotent per reservation. A reservation that was released before the
// payment arrived gets its slot back if one is still free.
func (e *Engine) Confirm(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID, paymentID string, amountPaid int64) (*models.ContestEntry, error) {
	res, err := e.repo.GetReservationForUpdate(ctx, tx, reservationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case models.ReservationConfirmed:
		return e.repo.GetEntryByReservation(ctx, tx, reservationID)
	case models.ReservationReleased:
		ok, err := e.repo.ReserveSlot(ctx, tx, res.ContestID)
		if err != nil && !database.IsCheckViolation(err) {
			return nil, fmt.Errorf("re-acquire slot: %w", err)
		}
		if !ok {
			return nil, ErrReservationExpired
		}
		e.log.Info("late payment re-acquired slot", "reservation_id", reservationID, "payment_id", paymentID)
	}
	c, err := e.repo.GetForUpdate(ctx, tx, res.ContestID)
	if err != nil {
		return nil, fmt.Errorf("load contest: %w", err)
	}
	entry, err := e.confirmHeld(ctx, tx, c, res, paymentID, amountPaid)
	if err != nil {
		return nil, err
	}
	metrics.ContestSlots.WithLabelValues("confirmed").Inc()
	return entry, nil
}

// confirmHeld turns a reservation that owns a slot into an entry.
func (e *Engine) confirmHeld(ctx context.Context, tx pgx.Tx, c *models.Contest, res *models.SlotReservation, paymentID string, amountPaid int64) (*models.ContestEntry, error) {
	if err := e.repo.SetReservationStatus(ctx, tx, res.ID, models.ReservationConfirmed); err != nil {
		return nil, err
	}
	res.Status = models.ReservationConfirmed
	entry := &models.ContestEntry{
		ID:            uuid.New(),
		ContestID:     c.ID,
		ParticipantID: res.ParticipantID,
		ReservationID: res.ID,
		EntryFeePaid:  amountPaid,
	}
	if err := e.repo.CreateEntry(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}
	if amountPaid > 0 {
		payer := res.ParticipantID
		fee := &models.FeeTransaction{
			ID:          uuid.New(),
			ProviderID:  c.CreatorID,
			PayerID:     &payer,
			Source:      models.FeeSourceContestEntry,
			SourceID:    entry.ID,
			Amount:      amountPaid,
			PlatformFee: payout.PlatformFee(amountPaid, e.cfg.PlatformFeePercent),
		}
		if err := e.fees.RecordFee(ctx, tx, fee); err != nil {
			return nil, fmt.Errorf("record fee: %w", err)
		}
	}
	entries, err := e.repo.CountEntries(ctx, tx, c.ID)
	if err != nil {
		return nil, err
	}
	if entries >= c.TotalSlots {
		if err := e.scheduler.ScheduleResolveTx(ctx, tx, c.ID); err != nil {
			return nil, fmt.Errorf("schedule resolve: %w", err)
		}
	}
	e.log.Info("contest entry recorded", "contest_id", c.ID, "entry_id", entry.ID, "payment_id", paymentID, "entries", entries)
	return entry, nil
}

// ReleaseExpired hands back the slot of a HELD reservation whose hold has
// lapsed. released is false when there was nothing to do.
func (e *Engine) ReleaseExpired(ctx context.Context, reservationID uuid.UUID) (bool, error) {
	return e.release(ctx, reservationID, true)
}

// SweepExpired releases every lapsed hold. It backs up the per-reservation
// release jobs.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	ids, err := e.repo.ListExpiredHeld(ctx, e.now(), 500)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, id := range ids {
		ok, err := e.ReleaseExpired(ctx, id)
		if err != nil {
			return released, fmt.Errorf("release %s: %w", id, err)
		}
		if ok {
			released++
		}
	}
	return released, nil
}

func (e *Engine) release(ctx context.Context, reservationID uuid.UUID, onlyExpired bool) (bool, error) {
	released := false
	err := database.InTx(ctx, e.db, func(tx pgx.Tx) error {
		res, err := e.repo.GetReservationForUpdate(ctx, tx, reservationID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if res.Status != models.ReservationHeld {
			return nil
		}
		if onlyExpired && e.now().Before(res.ExpiresAt) {
			return nil
		}
		if err := e.repo.SetReservationStatus(ctx, tx, res.ID, models.ReservationReleased); err != nil {
			return err
		}
		if err := e.repo.ReleaseSlot(ctx, tx, res.ContestID); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if released {
		metrics.ContestSlots.WithLabelValues("released").Inc()
		e.log.Info("reservation released", "reservation_id", reservationID)
	}
	return released, nil
}

func (e *Engine) Close(ctx context.Context, id uuid.UUID) (*models.Contest, error) {
	var c *models.Contest
	err := database.InTx(ctx, e.db, func(tx pgx.Tx) error {
		var err error
		c, err = e.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.Status != models.ContestOpen {
			return ErrInvalidState
		}
		c.Status = models.ContestClosed
		return e.repo.SetStatus(ctx, tx, id, models.ContestClosed)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("contest closed", "contest_id", id)
	return c, nil
}

// Resolve draws the winner. An OPEN contest must be sold out; a CLOSED one
// must have no pending holds. The draw happens once.
func (e *Engine) Resolve(ctx context.Context, id uuid.UUID) (*models.ContestEntry, error) {
	var winner *models.ContestEntry
	err := database.InTx(ctx, e.db, func(tx pgx.Tx) error {
		c, err := e.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.Status == models.ContestResolved {
			return ErrAlreadyResolved
		}
		entries, err := e.repo.ListEntries(ctx, tx, id)
		if err != nil {
			return err
		}
		held, err := e.repo.CountHeld(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.Status == models.ContestOpen && len(entries) < c.TotalSlots {
			return ErrNotSoldOut
		}
		if held > 0 {
			return ErrReservationsPending
		}
		if len(entries) == 0 {
			return ErrNoEntries
		}
		idx, err := e.pick(len(entries))
		if err != nil {
			return fmt.Errorf("draw winner: %w", err)
		}
		winner = entries[idx]
		if err := e.repo.MarkWinner(ctx, tx, winner.ID); err != nil {
			return err
		}
		winner.IsWinner = true
		return e.repo.MarkResolved(ctx, tx, id, winner.ParticipantID, e.now())
	})
	if err != nil {
		return nil, err
	}
	metrics.ContestsResolved.Inc()
	e.log.Info("contest resolved", "contest_id", id, "winner_id", winner.ParticipantID, "entry_id", winner.ID)
	return winner, nil
}

func (e *Engine) Update(ctx context.Context, id uuid.UUID, patch Patch) (*models.Contest, error) {
	var c *models.Contest
	err := database.InTx(ctx, e.db, func(tx pgx.Tx) error {
		var err error
		c, err = e.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.Status == models.ContestResolved {
			return ErrAlreadyResolved
		}
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return ErrInvalidContest
			}
			c.Title = title
		}
		if patch.PrizeDescription != nil {
			c.PrizeDescription = strings.TrimSpace(*patch.PrizeDescription)
		}
		return e.repo.UpdateDetails(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Engine) Delete(ctx context.Context, id uuid.UUID) error {
	err := database.InTx(ctx, e.db, func(tx pgx.Tx) error {
		if _, err := e.lock(ctx, tx, id); err != nil {
			return err
		}
		entries, err := e.repo.CountEntries(ctx, tx, id)
		if err != nil {
			return err
		}
		held, err := e.repo.CountHeld(ctx, tx, id)
		if err != nil {
			return err
		}
		if entries > 0 || held > 0 {
			return ErrHasEntries
		}
		return e.repo.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	e.log.Info("contest deleted", "contest_id", id)
	return nil
}

func (e *Engine) lock(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contest, error) {
	c, err := e.repo.GetForUpdate(ctx, tx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// cryptoPick returns a uniform index in [0, n).
func cryptoPick(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqline/backend/internal/models"
)

const contestColumns = `id, creator_id, title, prize_description, total_slots, slot_price, slots_taken, status,
	winner_id, resolved_at, created_at, updated_at`

const reservationColumns = `id, contest_id, participant_id, status, expires_at, checkout_session_id, created_at`

const entryColumns = `id, contest_id, participant_id, reservation_id, entry_fee_paid, is_winner, entered_at`

type ContestRepo struct {
	pool *pgxpool.Pool
}

func NewContestRepo(pool *pgxpool.Pool) *ContestRepo {
	return &ContestRepo{pool: pool}
}

func scanContest(row pgx.Row) (*models.Contest, error) {
	var c models.Contest
	err := row.Scan(&c.ID, &c.CreatorID, &c.Title, &c.PrizeDescription, &c.TotalSlots, &c.SlotPrice, &c.SlotsTaken, &c.Status,
		&c.WinnerID, &c.ResolvedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanReservation(row pgx.Row) (*models.SlotReservation, error) {
	var r models.SlotReservation
	err := row.Scan(&r.ID, &r.ContestID, &r.ParticipantID, &r.Status, &r.ExpiresAt, &r.CheckoutSessionID, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanEntry(row pgx.Row) (*models.ContestEntry, error) {
	var e models.ContestEntry
	err := row.Scan(&e.ID, &e.ContestID, &e.ParticipantID, &e.ReservationID, &e.EntryFeePaid, &e.IsWinner, &e.EnteredAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ContestRepo) Create(ctx context.Context, c *models.Contest) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO contests (id, creator_id, title, prize_description, total_slots, slot_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING slots_taken, created_at, updated_at
	`, c.ID, c.CreatorID, c.Title, c.PrizeDescription, c.TotalSlots, c.SlotPrice, c.Status).
		Scan(&c.SlotsTaken, &c.CreatedAt, &c.UpdatedAt)
}

func (r *ContestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Contest, error) {
	return scanContest(r.pool.QueryRow(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = $1`, id))
}

// GetForUpdate locks the contest row. Call within a transaction.
func (r *ContestRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contest, error) {
	return scanContest(tx.QueryRow(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = $1 FOR UPDATE`, id))
}

// List returns contests newest first; a nil status returns every status.
func (r *ContestRepo) List(ctx context.Context, status *models.ContestStatus, limit int) ([]*models.Contest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contestColumns+` FROM contests
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// ReserveSlot takes one slot if the contest is OPEN and not full. The check and
// the increment are a single statement, so concurrent callers cannot oversell.
func (r *ContestRepo) ReserveSlot(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE contests SET slots_taken = slots_taken + 1, updated_at = now()
		WHERE id = $1 AND status = 'OPEN' AND slots_taken < total_slots
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ContestRepo) ReleaseSlot(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE contests SET slots_taken = slots_taken - 1, updated_at = now()
		WHERE id = $1 AND slots_taken > 0
	`, id)
	return err
}

func (r *ContestRepo) UpdateDetails(ctx context.Context, tx pgx.Tx, c *models.Contest) error {
	return tx.QueryRow(ctx, `
		UPDATE contests SET title = $2, prize_description = $3, total_slots = $4, slot_price = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, c.ID, c.Title, c.PrizeDescription, c.TotalSlots, c.SlotPrice).Scan(&c.UpdatedAt)
}

func (r *ContestRepo) SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.ContestStatus) error {
	_, err := tx.Exec(ctx, `UPDATE contests SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *ContestRepo) MarkResolved(ctx context.Context, tx pgx.Tx, id, winnerID uuid.UUID, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE contests SET status = 'RESOLVED', winner_id = $2, resolved_at = $3, updated_at = now()
		WHERE id = $1
	`, id, winnerID, at)
	return err
}

func (r *ContestRepo) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM contests WHERE id = $1`, id)
	return err
}

func (r *ContestRepo) CreateReservation(ctx context.Context, tx pgx.Tx, res *models.SlotReservation) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	return tx.QueryRow(ctx, `
		INSERT INTO contest_reservations (id, contest_id, participant_id, status, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, res.ID, res.ContestID, res.ParticipantID, res.Status, res.ExpiresAt).Scan(&res.CreatedAt)
}

func (r *ContestRepo) GetReservationForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.SlotReservation, error) {
	return scanReservation(tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM contest_reservations WHERE id = $1 FOR UPDATE`, id))
}

func (r *ContestRepo) SetReservationStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.ReservationStatus) error {
	_, err := tx.Exec(ctx, `UPDATE contest_reservations SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *ContestRepo) SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contest_reservations SET checkout_session_id = $2, updated_at = now() WHERE id = $1
	`, id, sessionID)
	return err
}

func (r *ContestRepo) CountHeld(ctx context.Context, tx pgx.Tx, contestID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM contest_reservations WHERE contest_id = $1 AND status = 'HELD'
	`, contestID).Scan(&n)
	return n, err
}

// ListExpiredHeld returns the ids of HELD reservations whose hold has lapsed.
func (r *ContestRepo) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM contest_reservations
		WHERE status = 'HELD' AND expires_at <= $1
		ORDER BY expires_at LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ContestRepo) CreateEntry(ctx context.Context, tx pgx.Tx, e *models.ContestEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return tx.QueryRow(ctx, `
		INSERT INTO contest_entries (id, contest_id, participant_id, reservation_id, entry_fee_paid)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING entered_at
	`, e.ID, e.ContestID, e.ParticipantID, e.ReservationID, e.EntryFeePaid).Scan(&e.EnteredAt)
}

func (r *ContestRepo) GetEntryByReservation(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID) (*models.ContestEntry, error) {
	return scanEntry(tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM contest_entries WHERE reservation_id = $1`, reservationID))
}

func (r *ContestRepo) CountEntries(ctx context.Context, q Querier, contestID uuid.UUID) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM contest_entries WHERE contest_id = $1`, contestID).Scan(&n)
	return n, err
}

func (r *ContestRepo) ListEntries(ctx context.Context, tx pgx.Tx, contestID uuid.UUID) ([]*models.ContestEntry, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+entryColumns+` FROM contest_entries WHERE contest_id = $1 ORDER BY entered_at, id
	`, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ContestEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *ContestRepo) MarkWinner(ctx context.Context, tx pgx.Tx, entryID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE contest_entries SET is_winner = TRUE WHERE id = $1`, entryID)
	return err
}

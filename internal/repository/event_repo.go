package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type EventRepo struct{}

func NewEventRepo() *EventRepo {
	return &EventRepo{}
}

// Claim records eventID as processed inside tx. It returns false when the id
// was already claimed by a committed transaction. A concurrent claim blocks on
// the primary key until the other transaction finishes.
func (r *EventRepo) Claim(ctx context.Context, tx pgx.Tx, eventID, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO processed_payment_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

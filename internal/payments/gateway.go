package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/souqline/backend/internal/database"
	"github.com/souqline/backend/internal/metrics"
)

// HandlerFunc applies one event type's effect inside the gateway transaction.
// Returning an error rolls back the effect and the event claim.
type HandlerFunc func(ctx context.Context, tx pgx.Tx, evt *Event) error

// EventClaimer records processed event ids; Claim returns false for an id
// that was already processed.
type EventClaimer interface {
	Claim(ctx context.Context, tx pgx.Tx, eventID, eventType string) (bool, error)
}

// Result describes what the gateway did with a verified event.
type Result struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
}

// Gateway is the single entry point for processor events: verify, validate,
// claim, dispatch. The claim and the handler's writes share one transaction,
// so an event is applied exactly once however often it is delivered.
type Gateway struct {
	db       database.TxBeginner
	events   EventClaimer
	verifier *Verifier
	schema   *jsonschema.Schema
	handlers map[string]HandlerFunc
	log      *slog.Logger
}

func NewGateway(db database.TxBeginner, events EventClaimer, verifier *Verifier, log *slog.Logger) (*Gateway, error) {
	if log == nil {
		log = slog.Default()
	}
	schema, err := compileEventSchema()
	if err != nil {
		return nil, err
	}
	return &Gateway{
		db:       db,
		events:   events,
		verifier: verifier,
		schema:   schema,
		handlers: make(map[string]HandlerFunc),
		log:      log,
	}, nil
}

// Handle registers fn for eventType, replacing any earlier registration.
func (g *Gateway) Handle(eventType string, fn HandlerFunc) {
	g.handlers[eventType] = fn
}

func (g *Gateway) VerifyAndDispatch(ctx context.Context, payload []byte, signatureHeader string) (Result, error) {
	if err := g.verifier.Verify(payload, signatureHeader); err != nil {
		metrics.PaymentEvents.WithLabelValues("", "rejected").Inc()
		return Result{}, err
	}
	evt, err := parseEvent(g.schema, payload)
	if err != nil {
		metrics.PaymentEvents.WithLabelValues("", "malformed").Inc()
		return Result{}, err
	}

	res := Result{EventID: evt.ID, Type: evt.Type}
	handler, known := g.handlers[evt.Type]
	err = database.InTx(ctx, g.db, func(tx pgx.Tx) error {
		claimed, err := g.events.Claim(ctx, tx, evt.ID, evt.Type)
		if err != nil {
			return fmt.Errorf("claim event: %w", err)
		}
		if !claimed {
			res.Duplicate = true
			return nil
		}
		if !known {
			res.Ignored = true
			return nil
		}
		return handler(ctx, tx, evt)
	})
	if err != nil {
		metrics.PaymentEvents.WithLabelValues(evt.Type, "failed").Inc()
		if errors.Is(err, ErrMalformedEvent) {
			g.log.Warn("payment event rejected", "event_id", evt.ID, "type", evt.Type, "error", err)
		} else {
			g.log.Error("payment event failed", "event_id", evt.ID, "type", evt.Type, "error", err)
		}
		return res, err
	}

	switch {
	case res.Duplicate:
		metrics.PaymentEvents.WithLabelValues(evt.Type, "duplicate").Inc()
		g.log.Info("duplicate payment event", "event_id", evt.ID, "type", evt.Type)
	case res.Ignored:
		metrics.PaymentEvents.WithLabelValues(evt.Type, "ignored").Inc()
		g.log.Info("unhandled payment event type", "event_id", evt.ID, "type", evt.Type)
	default:
		metrics.PaymentEvents.WithLabelValues(evt.Type, "applied").Inc()
		g.log.Info("payment event applied", "event_id", evt.ID, "type", evt.Type)
	}
	return res, nil
}

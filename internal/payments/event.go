package payments

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// ErrMalformedEvent is returned for payloads that are not a well-formed
// processor event or lack a field their type requires.
var ErrMalformedEvent = errors.New("malformed payment event")

// Event types the gateway dispatches.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventSubscriptionUpdated   = "customer.subscription.updated"
	EventSubscriptionDeleted   = "customer.subscription.deleted"
	EventInvoicePaymentFailed  = "invoice.payment_failed"
	EventPaymentMethodAttached = "payment_method.attached"
	EventPayoutPaid            = "payout.paid"
)

//go:embed schemas/event.v1.json
var eventSchemaJSON string

func compileEventSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.CompileString("https://souqline.dev/schemas/payment-event.v1", eventSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	return schema, nil
}

// Event is a verified, schema-checked processor event. Field access goes
// through gjson against data.object.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	object  gjson.Result
}

func parseEvent(schema *jsonschema.Schema, payload []byte) (*Event, error) {
	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	root := gjson.ParseBytes(payload)
	evt := &Event{
		ID:     root.Get("id").String(),
		Type:   root.Get("type").String(),
		object: root.Get("data.object"),
	}
	if created := root.Get("created"); created.Exists() {
		evt.Created = time.Unix(created.Int(), 0).UTC()
	}
	return evt, nil
}

// Str returns a data.object field by gjson path, or "" when absent.
func (e *Event) Str(path string) string {
	return e.object.Get(path).String()
}

func (e *Event) Int(path string) int64 {
	return e.object.Get(path).Int()
}

func (e *Event) Bool(path string) bool {
	return e.object.Get(path).Bool()
}

// Has reports whether a data.object field is present and non-null.
func (e *Event) Has(path string) bool {
	r := e.object.Get(path)
	return r.Exists() && r.Type != gjson.Null
}

// Meta returns a metadata value as a string; numeric values are formatted.
func (e *Event) Meta(key string) string {
	return e.object.Get("metadata." + key).String()
}

// UnixTime reads a unix-seconds field. ok is false when absent or zero.
func (e *Event) UnixTime(path string) (time.Time, bool) {
	n := e.object.Get(path).Int()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(n, 0).UTC(), true
}

// MetaUUID parses a metadata value as a UUID.
func (e *Event) MetaUUID(key string) (uuid.UUID, error) {
	id, err := uuid.Parse(e.Meta(key))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: metadata.%s: %v", ErrMalformedEvent, key, err)
	}
	return id, nil
}

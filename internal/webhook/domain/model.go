package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the durable ledger row for every accepted gateway event.
// The unique index on gateway_event_id is the idempotency gate: a redelivery
// of the same event can never create a second row.
type EventRecord struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	GatewayEventID string         `json:"gateway_event_id" gorm:"type:text;not null;uniqueIndex:ux_webhook_events_gateway_event_id"`
	EventType      string         `json:"event_type" gorm:"type:text;not null"`
	Payload        datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt     time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt    *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "webhook_events" }

// EventType is the closed set of event kinds the pipeline understands.
type EventType string

const (
	EventTypePaymentSucceeded      EventType = "payment_succeeded"
	EventTypePaymentFailed         EventType = "payment_failed"
	EventTypeInvoicePaid           EventType = "invoice_paid"
	EventTypeInvoicePaymentFailed  EventType = "invoice_payment_failed"
	EventTypeSubscriptionCancelled EventType = "subscription_cancelled"
	EventTypeUnknown               EventType = "unknown"
)

// Event is the canonical parsed gateway event handed to the processor.
type Event struct {
	GatewayEventID string
	Type           EventType
	RawType        string
	PaymentID      string
	InvoiceID      string
	SubscriptionID string
	Amount         int64
	Currency       string
	PaymentMethod  string
	OccurredAt     time.Time
	RawPayload     []byte
}

// Outcome reports how an inbound delivery was resolved. Duplicate and
// ignored deliveries are still acknowledged to the gateway as success.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

type envelope struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Created int64        `json:"created"`
	Data    envelopeData `json:"data"`
}

type envelopeData struct {
	Object json.RawMessage `json:"object"`
}

type chargeObject struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
	Created       int64  `json:"created"`
}

type invoiceObject struct {
	ID            string `json:"id"`
	Payment       string `json:"payment"`
	Subscription  string `json:"subscription"`
	AmountDue     int64  `json:"amount_due"`
	AmountPaid    int64  `json:"amount_paid"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
	Created       int64  `json:"created"`
}

type subscriptionObject struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
}

// ParseEvent decodes the gateway envelope into a canonical Event. Types the
// pipeline does not understand come back as EventTypeUnknown, never as an
// error: the gateway may ship new event kinds before we learn about them.
func ParseEvent(payload []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(env.ID) == "" {
		return nil, ErrInvalidEvent
	}

	rawType := strings.TrimSpace(env.Type)
	event := &Event{
		GatewayEventID: env.ID,
		RawType:        rawType,
		OccurredAt:     unixTime(env.Created),
		RawPayload:     payload,
	}

	switch rawType {
	case "charge.succeeded":
		event.Type = EventTypePaymentSucceeded
		return parseCharge(event, env.Data.Object)
	case "charge.failed":
		event.Type = EventTypePaymentFailed
		return parseCharge(event, env.Data.Object)
	case "invoice.paid":
		event.Type = EventTypeInvoicePaid
		return parseInvoice(event, env.Data.Object)
	case "invoice.payment_failed":
		event.Type = EventTypeInvoicePaymentFailed
		return parseInvoice(event, env.Data.Object)
	case "subscription.cancelled":
		event.Type = EventTypeSubscriptionCancelled
		return parseSubscription(event, env.Data.Object)
	default:
		event.Type = EventTypeUnknown
		return event, nil
	}
}

func parseCharge(event *Event, object json.RawMessage) (*Event, error) {
	var charge chargeObject
	if err := json.Unmarshal(object, &charge); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(charge.ID) == "" {
		return nil, ErrInvalidEvent
	}
	event.PaymentID = charge.ID
	event.Amount = charge.Amount
	event.Currency = strings.ToUpper(strings.TrimSpace(charge.Currency))
	event.PaymentMethod = strings.TrimSpace(charge.PaymentMethod)
	if charge.Created != 0 {
		event.OccurredAt = unixTime(charge.Created)
	}
	return event, nil
}

func parseInvoice(event *Event, object json.RawMessage) (*Event, error) {
	var invoice invoiceObject
	if err := json.Unmarshal(object, &invoice); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return nil, ErrInvalidEvent
	}
	event.InvoiceID = invoice.ID
	event.PaymentID = strings.TrimSpace(invoice.Payment)
	event.SubscriptionID = strings.TrimSpace(invoice.Subscription)
	event.Amount = invoice.AmountPaid
	if event.Amount <= 0 {
		event.Amount = invoice.AmountDue
	}
	event.Currency = strings.ToUpper(strings.TrimSpace(invoice.Currency))
	event.PaymentMethod = strings.TrimSpace(invoice.PaymentMethod)
	if invoice.Created != 0 {
		event.OccurredAt = unixTime(invoice.Created)
	}
	return event, nil
}

func parseSubscription(event *Event, object json.RawMessage) (*Event, error) {
	var sub subscriptionObject
	if err := json.Unmarshal(object, &sub); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, ErrInvalidEvent
	}
	event.SubscriptionID = sub.ID
	return event, nil
}

// unixTime leaves the zero time in place when the envelope carries no
// timestamp; the processor stamps those from its own clock.
func unixTime(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}

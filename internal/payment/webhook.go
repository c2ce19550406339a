package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is how old a webhook timestamp may be.
const DefaultTolerance = webhook.DefaultTolerance

// EventType is one of the webhook types the service acts on.
type EventType string

const (
	CheckoutCompleted EventType = "checkout.session.completed"
	ChargeSucceeded   EventType = "charge.succeeded"
	ChargeRefunded    EventType = "charge.refunded"
)

var (
	ErrBadSignature     = errors.New("webhook signature invalid")
	ErrUnsupportedEvent = errors.New("unsupported webhook event")
)

// Event is a decoded webhook.  Reference and Paid are only set for
// CheckoutCompleted.  ChargeID prefers the payment intent id, which is
// stable across the checkout and charge events.
type Event struct {
	ID        string
	Type      EventType
	Reference string
	ChargeID  string
	Paid      bool
}

// ConstructEvent verifies header against payload and decodes the event.
// Signature failures wrap ErrBadSignature and types outside the closed
// set wrap ErrUnsupportedEvent; anything else is a malformed body.
func ConstructEvent(payload []byte, header, secret string, tolerance time.Duration) (Event, error) {
	if secret == "" {
		return Event{}, fmt.Errorf("%w: no secret configured", ErrBadSignature)
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	se, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return Event{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
		return Event{}, fmt.Errorf("decode webhook: %w", err)
	}
	return fromStripe(se)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// DecodeEvent parses an already trusted webhook body, such as one read
// back from the processor's event log.
func DecodeEvent(payload []byte) (Event, error) {
	var se stripe.Event
	if err := json.Unmarshal(payload, &se); err != nil {
		return Event{}, fmt.Errorf("decode webhook: %w", err)
	}
	return fromStripe(se)
}

// Sign produces a header ConstructEvent accepts.  Used by tests and the
// local webhook replay tool.
func Sign(payload []byte, secret string, at time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	}).Header
}

func fromStripe(se stripe.Event) (Event, error) {
	ev := Event{ID: se.ID, Type: EventType(se.Type)}
	var raw json.RawMessage
	if se.Data != nil {
		raw = se.Data.Raw
	}

	switch ev.Type {
	case CheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := unmarshalObject(raw, &cs); err != nil {
			return Event{}, err
		}
		ev.Reference = cs.ClientReferenceID
		if ev.Reference == "" {
			ev.Reference = cs.Metadata["reference"]
		}
		if ev.Reference == "" {
			return Event{}, errors.New("decode webhook: checkout without reference")
		}
		// A checkout session id is not a charge.
		if cs.PaymentIntent != nil {
			ev.ChargeID = cs.PaymentIntent.ID
		}
		ev.Paid = cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
	case ChargeSucceeded, ChargeRefunded:
		var ch stripe.Charge
		if err := unmarshalObject(raw, &ch); err != nil {
			return Event{}, err
		}
		ev.ChargeID = ch.ID
		if ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
			ev.ChargeID = ch.PaymentIntent.ID
		}
		if ev.ChargeID == "" {
			return Event{}, errors.New("decode webhook: charge without id")
		}
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnsupportedEvent, se.Type)
	}
	return ev, nil
}

func unmarshalObject(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("decode webhook: event without data")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode webhook: %w", err)
	}
	return nil
}

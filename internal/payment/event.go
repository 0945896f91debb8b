package payment

import (
	"encoding/json"
	"fmt"
)

// EventType enumerates the provider events this server acts on. Anything
// else is acknowledged and ignored.
type EventType string

const (
	EventCheckoutCompleted EventType = "checkout.session.completed"
	EventChargeRefunded    EventType = "charge.refunded"
)

// CheckoutSession is the slice of the provider's checkout-completed payload
// the fulfillment pipeline needs.
type CheckoutSession struct {
	ID              string            `json:"id"`
	PaymentIntentID string            `json:"payment_intent"`
	CustomerID      string            `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Quantity int               `json:"quantity"`
	Metadata map[string]string `json:"metadata"`

	// URL is only present on freshly created sessions; the buyer is
	// redirected there to pay.
	URL string `json:"url"`
}

// Email prefers the checkout-level email and falls back to customer details.
func (s CheckoutSession) Email() string {
	if s.CustomerEmail != "" {
		return s.CustomerEmail
	}
	return s.CustomerDetails.Email
}

// Charge is the slice of a refund payload needed to reverse fulfillment.
type Charge struct {
	ID              string `json:"id"`
	PaymentIntentID string `json:"payment_intent"`
	Refunded        bool   `json:"refunded"`
}

// Event is the decoded webhook envelope: a tagged union keyed on the
// provider's type discriminator, decoded into a closed set of shapes.
type Event struct {
	ID              string
	Type            EventType
	CheckoutSession *CheckoutSession
	Charge          *Charge
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a verified webhook payload. Unknown event types yield
// an Event with only ID and Type set.
func ParseEvent(payload []byte) (Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Event{}, fmt.Errorf("decode event envelope: %w", err)
	}

	event := Event{ID: envelope.ID, Type: EventType(envelope.Type)}
	switch event.Type {
	case EventCheckoutCompleted:
		var session CheckoutSession
		if err := json.Unmarshal(envelope.Data.Object, &session); err != nil {
			return Event{}, fmt.Errorf("decode checkout session: %w", err)
		}
		event.CheckoutSession = &session
	case EventChargeRefunded:
		var charge Charge
		if err := json.Unmarshal(envelope.Data.Object, &charge); err != nil {
			return Event{}, fmt.Errorf("decode charge: %w", err)
		}
		event.Charge = &charge
	}

	return event, nil
}

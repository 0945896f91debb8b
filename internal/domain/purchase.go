package domain

import (
	"time"

	"github.com/google/uuid"
)

// Purchase records one checkout session. EventID is the provider's checkout
// session id and is unique; it is the idempotency key for webhook deliveries.
// Fulfilled only ever transitions false -> true, after grants exist and the
// confirmation email has been sent.
type Purchase struct {
	ID              int
	ProductID       int
	EventID         string
	PaymentIntentID string
	CustomerID      string
	Quantity        int
	Email           string
	TxRefID         uuid.UUID
	PurchaseTime    time.Time
	Fulfilled       bool
}

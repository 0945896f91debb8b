package handler

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kdrag0n/earlypilot/internal/patreon"
	"github.com/kdrag0n/earlypilot/internal/payment"
	"github.com/kdrag0n/earlypilot/internal/service"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives provider callbacks. Both endpoints sit behind a
// secret URL key; the payment endpoint additionally verifies the provider's
// signature over the raw body.
type WebhookHandler struct {
	Verifier    *payment.WebhookVerifier
	Fulfillment *service.FulfillmentService
	Identities  *patreon.IdentityCache
	PaymentKey  string
	PatreonKey  string
	Logger      *zap.Logger
}

// Payment handles checkout and refund events. Returning a non-2xx status
// makes the provider redeliver, which the fulfillment pipeline tolerates.
func (h *WebhookHandler) Payment(c *gin.Context) {
	if !keyMatches(c.Param("key"), h.PaymentKey) {
		c.Status(http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if err := h.Verifier.Verify(body, c.GetHeader("Stripe-Signature")); err != nil {
		h.log().Warn("rejected payment webhook", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	event, err := payment.ParseEvent(body)
	if err != nil {
		h.log().Warn("undecodable payment webhook", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	switch {
	case event.Type == payment.EventCheckoutCompleted && event.CheckoutSession != nil:
		err = h.Fulfillment.FulfillCheckout(c.Request.Context(), *event.CheckoutSession)
	case event.Type == payment.EventChargeRefunded && event.Charge != nil:
		err = h.Fulfillment.HandleRefund(c.Request.Context(), *event.Charge)
	default:
		// Acknowledge everything else so the provider stops retrying.
		c.Status(http.StatusOK)
		return
	}

	if err != nil {
		h.log().Error("payment webhook processing failed",
			zap.String("eventId", event.ID),
			zap.String("eventType", string(event.Type)),
			zap.Error(err),
		)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

// Pledge handles pledge-change notifications by dropping the affected user's
// cached identity, so the next request re-evaluates their benefits.
func (h *WebhookHandler) Pledge(c *gin.Context) {
	if !keyMatches(c.Param("key"), h.PatreonKey) {
		c.Status(http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	var event patreon.PledgeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	userID := event.Data.Relationships.User.Data.ID
	if userID != "" {
		h.Identities.InvalidateUser(userID)
		h.log().Info("invalidated cached identity",
			zap.String("userId", userID),
			zap.String("trigger", c.Param("event")),
		)
	}
	c.Status(http.StatusOK)
}

func keyMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (h *WebhookHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

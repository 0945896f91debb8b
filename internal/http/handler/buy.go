package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kdrag0n/earlypilot/internal/domain"
	"github.com/kdrag0n/earlypilot/internal/service"
)

// BuyHandler drives the purchase flow: redirect to the provider's hosted
// checkout, then show the success page after payment.
type BuyHandler struct {
	Checkout *service.CheckoutService
	Logger   *zap.Logger
}

// Start creates a checkout session for a product and redirects the buyer.
func (h *BuyHandler) Start(c *gin.Context) {
	productID, err := strconv.Atoi(c.Param("productId"))
	if err != nil {
		c.String(http.StatusNotFound, "Product not found.")
		return
	}

	session, product, err := h.Checkout.StartCheckout(c.Request.Context(), productID)
	switch {
	case errors.Is(err, service.ErrNotForSale):
		// Sales have ended; point buyers at the public release if there is one.
		if product.PublicURL != "" {
			c.Redirect(http.StatusFound, product.PublicURL)
			return
		}
		c.String(http.StatusGone, "This product is no longer for sale.")
	case errors.Is(err, domain.ErrNotFound):
		c.String(http.StatusNotFound, "Product not found.")
	case err != nil:
		h.log().Error("checkout start failed", zap.Int("productId", productID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Unable to start checkout. Please try again.")
	default:
		c.Redirect(http.StatusSeeOther, session.URL)
	}
}

// Success shows the post-payment page keyed by the buyer-visible transaction
// reference. Fulfillment runs off the webhook, so the purchase may not be
// visible yet on the first load.
func (h *BuyHandler) Success(c *gin.Context) {
	txRefID, err := uuid.Parse(c.Param("txRefId"))
	if err != nil {
		c.String(http.StatusNotFound, "Purchase not found.")
		return
	}

	info, err := h.Checkout.PurchaseSuccess(c.Request.Context(), txRefID)
	if errors.Is(err, domain.ErrNotFound) {
		c.Header("Cache-Control", "no-store")
		c.Header("Refresh", "3")
		c.String(http.StatusOK, "Your payment is being processed. This page will refresh shortly.")
		return
	}
	if err != nil {
		h.log().Error("purchase success lookup failed", zap.String("txRefId", txRefID.String()), zap.Error(err))
		c.String(http.StatusInternalServerError, "Unable to load your purchase. Check your email for the download link.")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"product":      info.Product.Name,
		"quantity":     info.Purchase.Quantity,
		"email":        info.Purchase.Email,
		"downloadLink": info.FirstDownloadLink,
		"note":         "All download links were sent to your email.",
	})
}

func (h *BuyHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

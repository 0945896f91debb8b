package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kdrag0n/earlypilot/internal/domain"
)

const checkoutSessionsURL = "https://api.stripe.com/v1/checkout/sessions"

// CheckoutClient creates provider checkout sessions for one-time purchases.
type CheckoutClient interface {
	CreateSession(ctx context.Context, in CreateSessionInput) (CheckoutSession, error)
}

// CreateSessionInput carries everything a checkout session needs. TxRefID is
// a locally generated reference exposed on the success page; ProductID and
// TxRefID travel in session metadata so the webhook can correlate the
// payment back to local state.
type CreateSessionInput struct {
	Product    domain.Product
	PriceCents int
	TxRefID    string
	SuccessURL string
	CancelURL  string
}

// StripeCheckoutClient talks to the provider's form-encoded REST API.
type StripeCheckoutClient struct {
	secretKey  string
	httpClient *http.Client
}

var _ CheckoutClient = (*StripeCheckoutClient)(nil)

func NewStripeCheckoutClient(secretKey string) *StripeCheckoutClient {
	return &StripeCheckoutClient{
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *StripeCheckoutClient) CreateSession(ctx context.Context, in CreateSessionInput) (CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("success_url", in.SuccessURL)
	form.Set("cancel_url", in.CancelURL)
	form.Set("metadata[productId]", strconv.Itoa(in.Product.ID))
	form.Set("metadata[txRefId]", in.TxRefID)
	form.Set("payment_intent_data[description]", "One-time purchase of "+in.Product.Name)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][adjustable_quantity][enabled]", "true")
	form.Set("line_items[0][adjustable_quantity][minimum]", "1")
	form.Set("line_items[0][adjustable_quantity][maximum]", "99")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", strconv.Itoa(in.PriceCents))
	form.Set("line_items[0][price_data][product_data][name]", in.Product.Name)
	form.Set("line_items[0][price_data][product_data][description]", "One-time early access purchase")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, checkoutSessionsURL, strings.NewReader(form.Encode()))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.secretKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("read checkout response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return CheckoutSession{}, fmt.Errorf("checkout session request failed with status %d", resp.StatusCode)
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return CheckoutSession{}, fmt.Errorf("decode checkout session: %w", err)
	}
	return session, nil
}

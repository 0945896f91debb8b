package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Mailer sends transactional email. Delivery failures are returned so the
// fulfillment pipeline can leave the purchase unfulfilled and let the next
// webhook retry.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Message is one outbound email.
type Message struct {
	ToAddress string
	ToName    string
	Subject   string
	BodyText  string
}

// APIMailer posts messages to an HTTP email API.
type APIMailer struct {
	endpoint    string
	apiKey      string
	fromAddress string
	fromName    string
	httpClient  *http.Client
}

var _ Mailer = (*APIMailer)(nil)

func NewAPIMailer(endpoint, apiKey, fromAddress, fromName string) *APIMailer {
	return &APIMailer{
		endpoint:    endpoint,
		apiKey:      apiKey,
		fromAddress: fromAddress,
		fromName:    fromName,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (m *APIMailer) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(map[string]any{
		"from": map[string]string{
			"email": m.fromAddress,
			"name":  m.fromName,
		},
		"to": []map[string]string{
			{"email": msg.ToAddress, "name": msg.ToName},
		},
		"subject": msg.Subject,
		"text":    msg.BodyText,
	})
	if err != nil {
		return fmt.Errorf("encode mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail request failed with status %d", resp.StatusCode)
	}
	return nil
}

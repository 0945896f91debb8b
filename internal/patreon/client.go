package patreon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kdrag0n/earlypilot/internal/domain"
)

const identityURL = "https://www.patreon.com/api/oauth2/api/current_user"

// API fetches the identity behind an OAuth access token.
type API interface {
	GetIdentity(ctx context.Context, accessToken string) (*Identity, error)
}

// Client talks to the Patreon v1 API over HTTP.
type Client struct {
	httpClient *http.Client
}

var _ API = (*Client)(nil)

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// GetIdentity fetches the current user and their pledges. A 401 response
// maps to domain.ErrTokenExpired so callers can distinguish a stale token
// from a Patreon outage.
func (c *Client) GetIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, identityURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch identity: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrTokenExpired
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("identity request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read identity response: %w", err)
	}
	return decodeIdentity(body)
}

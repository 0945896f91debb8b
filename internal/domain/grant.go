package domain

import "time"

// GrantType distinguishes how a grant came to exist.
type GrantType string

const (
	// GrantTypeCreator is issued directly by the creator for a non-patron.
	GrantTypeCreator GrantType = "CREATOR"
	// GrantTypePurchase is generated by fulfilling a one-time purchase.
	GrantTypePurchase GrantType = "PURCHASE"
)

// Grant is a persisted, revocable access record for a single resource path.
// The capability token handed to users only references the grant by id; the
// authoritative state (disabled, expiry, path) lives here and is re-checked
// on every redemption.
type Grant struct {
	ID             int
	Type           GrantType
	Path           string
	Tag            string
	ExpireTime     time.Time
	AccessCount    int
	LastAccessTime *time.Time
	Disabled       bool
}

// Usable reports whether the grant authorizes access to path at the given
// instant.
func (g Grant) Usable(path string, now time.Time) bool {
	return !g.Disabled && g.Path == path && !now.After(g.ExpireTime)
}

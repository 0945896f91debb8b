package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kdrag0n/earlypilot/internal/domain"
)

// UserRepository persists Patreon identities known to this server.
type UserRepository interface {
	Get(ctx context.Context, id string) (domain.User, error)
	// UpsertLogin creates the row on first login and refreshes identity
	// fields on later ones.
	UpsertLogin(ctx context.Context, user domain.User) (domain.User, error)
	// RecordActivity stores the latest authorization outcome and client
	// address. Failures here must never fail the authorization decision.
	RecordActivity(ctx context.Context, id string, state domain.AuthorizationResult, ip string, at time.Time) error
}

// GrantRepository persists revocable access grants.
type GrantRepository interface {
	Create(ctx context.Context, grant domain.Grant) (domain.Grant, error)
	Get(ctx context.Context, id int) (domain.Grant, error)
	// Redeem increments the access counter and stamps the access time in a
	// single guarded statement: the row must match path, be enabled, and be
	// unexpired at the database's view of the given instant. Returns
	// domain.ErrNotFound when no row qualifies.
	Redeem(ctx context.Context, id int, path string, now time.Time) (domain.Grant, error)
	Disable(ctx context.Context, id int) error
	DisableByTag(ctx context.Context, grantType domain.GrantType, tag string) error
	ListByTag(ctx context.Context, grantType domain.GrantType, tag string, limit int) ([]domain.Grant, error)
}

// ProductRepository reads purchasable items.
type ProductRepository interface {
	Get(ctx context.Context, id int) (domain.Product, error)
	GetByPath(ctx context.Context, path string) (domain.Product, error)
}

// PurchaseRepository persists checkout records. EventID carries a unique
// constraint; Create must surface a duplicate insert as domain.ErrConflict
// so webhook retries can fall back to the existing row.
type PurchaseRepository interface {
	Create(ctx context.Context, purchase domain.Purchase) (domain.Purchase, error)
	GetByEventID(ctx context.Context, eventID string) (domain.Purchase, error)
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (domain.Purchase, error)
	GetByTxRef(ctx context.Context, txRefID uuid.UUID) (domain.Purchase, error)
	MarkFulfilled(ctx context.Context, id int) error
}

// DownloadEventRepository appends to the access audit trail.
type DownloadEventRepository interface {
	Create(ctx context.Context, event domain.DownloadEvent) (domain.DownloadEvent, error)
	DeactivateByTag(ctx context.Context, accessType domain.AccessType, tag string) error
}

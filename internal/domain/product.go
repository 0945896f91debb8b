package domain

import "time"

// Product is a purchasable early-access item.
type Product struct {
	ID           int
	Path         string
	Name         string
	PriceCents   *int
	ImageURL     string
	CreationTime time.Time
	UpdateTime   time.Time
	Active       bool

	// PublicURL is set once the item graduates to a public release; inactive
	// products with a public URL redirect there instead of selling.
	PublicURL string
}

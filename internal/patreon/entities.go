package patreon

import (
	"encoding/json"
	"fmt"
	"time"
)

// Identity is the resolved view of a Patreon user and their pledges, as
// needed for authorization decisions.
type Identity struct {
	ID       string
	FullName string
	Email    string
	Created  time.Time
	Pledges  []Pledge
}

// Pledge is one recurring subscription from the identity to some creator.
type Pledge struct {
	CreatorID     string
	AmountCents   int
	DeclinedSince *time.Time
}

// The pledge API speaks JSON:API: a data array plus an included array of
// polymorphic entities keyed on a "type" discriminator. Only the closed set
// below is decoded; unknown types are skipped.
type entity struct {
	Type          string          `json:"type"`
	ID            string          `json:"id"`
	Attributes    json.RawMessage `json:"attributes"`
	Relationships json.RawMessage `json:"relationships"`
}

type userAttributes struct {
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
	Created  time.Time `json:"created"`
}

type pledgeAttributes struct {
	AmountCents   int        `json:"amount_cents"`
	DeclinedSince *time.Time `json:"declined_since"`
}

type pledgeRelationships struct {
	Creator struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	} `json:"creator"`
	Reward struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	} `json:"reward"`
}

type identityDocument struct {
	Data     entity   `json:"data"`
	Included []entity `json:"included"`
}

func decodeIdentity(raw []byte) (*Identity, error) {
	var doc identityDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode identity document: %w", err)
	}
	if doc.Data.Type != "user" || doc.Data.ID == "" {
		return nil, fmt.Errorf("unexpected identity payload type %q", doc.Data.Type)
	}

	identity := &Identity{ID: doc.Data.ID}
	if len(doc.Data.Attributes) > 0 {
		var attrs userAttributes
		if err := json.Unmarshal(doc.Data.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("decode user attributes: %w", err)
		}
		identity.FullName = attrs.FullName
		identity.Email = attrs.Email
		identity.Created = attrs.Created
	}

	for _, inc := range doc.Included {
		if inc.Type != "pledge" {
			continue
		}

		var attrs pledgeAttributes
		if len(inc.Attributes) > 0 {
			if err := json.Unmarshal(inc.Attributes, &attrs); err != nil {
				return nil, fmt.Errorf("decode pledge attributes: %w", err)
			}
		}
		var rels pledgeRelationships
		if len(inc.Relationships) > 0 {
			if err := json.Unmarshal(inc.Relationships, &rels); err != nil {
				return nil, fmt.Errorf("decode pledge relationships: %w", err)
			}
		}

		identity.Pledges = append(identity.Pledges, Pledge{
			CreatorID:     rels.Creator.Data.ID,
			AmountCents:   attrs.AmountCents,
			DeclinedSince: attrs.DeclinedSince,
		})
	}

	return identity, nil
}

// PledgeEvent is the payload of a pledge-change webhook; only the user id is
// needed to invalidate cached identities.
type PledgeEvent struct {
	Data struct {
		Relationships struct {
			User struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"user"`
		} `json:"relationships"`
	} `json:"data"`
}

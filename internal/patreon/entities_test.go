package patreon

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeIdentityWithPledges(t *testing.T) {
	raw := []byte(`{
		"data": {
			"type": "user",
			"id": "12345",
			"attributes": {
				"full_name": "Pat Example",
				"email": "pat@example.com",
				"created": "2020-01-02T03:04:05Z"
			}
		},
		"included": [
			{
				"type": "pledge",
				"id": "p1",
				"attributes": {"amount_cents": 500, "declined_since": null},
				"relationships": {"creator": {"data": {"id": "creator-1", "type": "user"}}}
			},
			{
				"type": "pledge",
				"id": "p2",
				"attributes": {"amount_cents": 100, "declined_since": "2025-05-01T00:00:00Z"},
				"relationships": {"creator": {"data": {"id": "creator-2", "type": "user"}}}
			},
			{
				"type": "campaign",
				"id": "c1",
				"attributes": {"name": "ignored"}
			}
		]
	}`)

	identity, err := decodeIdentity(raw)
	require.NoError(t, err)
	require.Equal(t, "12345", identity.ID)
	require.Equal(t, "Pat Example", identity.FullName)
	require.Equal(t, "pat@example.com", identity.Email)
	require.Equal(t, time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), identity.Created)

	require.Len(t, identity.Pledges, 2, "non-pledge included entities must be skipped")
	require.Equal(t, "creator-1", identity.Pledges[0].CreatorID)
	require.Equal(t, 500, identity.Pledges[0].AmountCents)
	require.Nil(t, identity.Pledges[0].DeclinedSince)
	require.Equal(t, "creator-2", identity.Pledges[1].CreatorID)
	require.NotNil(t, identity.Pledges[1].DeclinedSince)
}

func TestDecodeIdentityNoPledges(t *testing.T) {
	raw := []byte(`{"data": {"type": "user", "id": "1", "attributes": {"full_name": "N", "email": "n@example.com", "created": "2020-01-01T00:00:00Z"}}}`)

	identity, err := decodeIdentity(raw)
	require.NoError(t, err)
	require.Equal(t, "1", identity.ID)
	require.Empty(t, identity.Pledges)
}

func TestDecodeIdentityRejectsWrongType(t *testing.T) {
	for _, raw := range []string{
		`{"data": {"type": "campaign", "id": "1"}}`,
		`{"data": {"type": "user", "id": ""}}`,
		`not json`,
	} {
		_, err := decodeIdentity([]byte(raw))
		require.Error(t, err, "payload %q", raw)
	}
}

func TestPledgeEventUserID(t *testing.T) {
	raw := []byte(`{"data": {"relationships": {"user": {"data": {"id": "999", "type": "user"}}}}}`)

	var event PledgeEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	require.Equal(t, "999", event.Data.Relationships.User.Data.ID)
}

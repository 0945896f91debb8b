package security_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdrag0n/earlypilot/internal/domain"
	"github.com/kdrag0n/earlypilot/internal/security"
)

func TestSessionCodecRoundTrip(t *testing.T) {
	codec, err := security.NewSessionCodec(testKey(0x33))
	require.NoError(t, err)

	session := security.PatronSession{PatreonUserID: "12345", AccessToken: "tok_abcdef"}
	sealed, err := codec.Encode(session)
	require.NoError(t, err)
	require.NotContains(t, sealed, "12345")
	require.NotContains(t, sealed, "tok_abcdef")

	opened, err := codec.Decode(sealed)
	require.NoError(t, err)
	require.Equal(t, session, opened)
}

func TestSessionCodecRejectsTampering(t *testing.T) {
	codec, err := security.NewSessionCodec(testKey(0x33))
	require.NoError(t, err)

	sealed, err := codec.Encode(security.PatronSession{PatreonUserID: "1", AccessToken: "t"})
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01

	_, err = codec.Decode(base64.RawURLEncoding.EncodeToString(raw))
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestSessionCodecRejectsGarbage(t *testing.T) {
	codec, err := security.NewSessionCodec(testKey(0x33))
	require.NoError(t, err)

	for _, value := range []string{"", "%%%", "c2hvcnQ"} {
		_, err := codec.Decode(value)
		require.ErrorIs(t, err, domain.ErrInvalidToken)
	}
}

func TestSessionCodecKeysAreIndependent(t *testing.T) {
	grantKeyCodec, err := security.NewSessionCodec(testKey(0x11))
	require.NoError(t, err)
	sessionCodec, err := security.NewSessionCodec(testKey(0x33))
	require.NoError(t, err)

	sealed, err := sessionCodec.Encode(security.PatronSession{PatreonUserID: "1", AccessToken: "t"})
	require.NoError(t, err)

	_, err = grantKeyCodec.Decode(sealed)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

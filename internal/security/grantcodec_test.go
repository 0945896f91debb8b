package security_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdrag0n/earlypilot/internal/domain"
	"github.com/kdrag0n/earlypilot/internal/security"
)

func TestGrantCodecRoundTrip(t *testing.T) {
	codec, err := security.NewGrantCodec(testKey(0x11))
	require.NoError(t, err)

	for _, id := range []int{1, 42, 999999} {
		token, err := codec.Issue(id)
		require.NoError(t, err)

		got, err := codec.Redeem(token)
		require.NoError(t, err)
		require.Equal(t, id, got)
	}
}

func TestGrantCodecPlaintextPaddedToBlockMultiple(t *testing.T) {
	codec, err := security.NewGrantCodec(testKey(0x11))
	require.NoError(t, err)

	// nonce (12) + tag (16) overhead; what remains is the padded claim.
	for _, id := range []int{1, 1000, 123456789} {
		token, err := codec.Issue(id)
		require.NoError(t, err)

		sealed, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		payloadLen := len(sealed) - 12 - 16
		require.Zero(t, payloadLen%8, "claim for id %d must be padded to an 8-byte boundary", id)
	}
}

func TestGrantCodecAcceptsStandardBase64(t *testing.T) {
	codec, err := security.NewGrantCodec(testKey(0x11))
	require.NoError(t, err)

	token, err := codec.Issue(7)
	require.NoError(t, err)

	sealed, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)

	got, err := codec.Redeem(base64.StdEncoding.EncodeToString(sealed))
	require.NoError(t, err)
	require.Equal(t, 7, got)
}

func TestGrantCodecRejectsTamperedToken(t *testing.T) {
	codec, err := security.NewGrantCodec(testKey(0x11))
	require.NoError(t, err)

	token, err := codec.Issue(42)
	require.NoError(t, err)

	sealed, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	sealed[len(sealed)/2] ^= 0x01

	_, err = codec.Redeem(base64.RawURLEncoding.EncodeToString(sealed))
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestGrantCodecRejectsGarbage(t *testing.T) {
	codec, err := security.NewGrantCodec(testKey(0x11))
	require.NoError(t, err)

	for _, token := range []string{"", "!!!not-base64!!!", "aGVsbG8", base64.RawURLEncoding.EncodeToString(make([]byte, 64))} {
		_, err := codec.Redeem(token)
		require.ErrorIs(t, err, domain.ErrInvalidToken, "token %q must be rejected", token)
	}
}

func TestGrantCodecRejectsOtherKey(t *testing.T) {
	codec, err := security.NewGrantCodec(testKey(0x11))
	require.NoError(t, err)
	other, err := security.NewGrantCodec(testKey(0x22))
	require.NoError(t, err)

	token, err := codec.Issue(42)
	require.NoError(t, err)

	_, err = other.Redeem(token)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

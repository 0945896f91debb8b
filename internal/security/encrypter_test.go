package security_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdrag0n/earlypilot/internal/security"
)

func testKey(fill byte) []byte {
	key := make([]byte, security.KeyBytes)
	for i := range key {
		key[i] = fill
	}
	return key
}

func TestEncrypterRoundTrip(t *testing.T) {
	enc, err := security.NewEncrypter(testKey(0x42))
	require.NoError(t, err)

	plaintext := []byte("exclusive access payload")
	sealed, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestEncrypterNoncesDiffer(t *testing.T) {
	enc, err := security.NewEncrypter(testKey(0x42))
	require.NoError(t, err)

	a, err := enc.Encrypt([]byte("same input"))
	require.NoError(t, err)
	b, err := enc.Encrypt([]byte("same input"))
	require.NoError(t, err)
	require.False(t, bytes.Equal(a, b), "two encryptions of the same plaintext must not repeat")
}

func TestEncrypterRejectsInvalidKeySize(t *testing.T) {
	_, err := security.NewEncrypter(make([]byte, 16))
	require.Error(t, err)
}

func TestEncrypterRejectsEveryTamperedByte(t *testing.T) {
	enc, err := security.NewEncrypter(testKey(0x42))
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("tamper target"))
	require.NoError(t, err)

	for i := range sealed {
		tampered := append([]byte(nil), sealed...)
		tampered[i] ^= 0x01

		_, err := enc.Decrypt(tampered)
		require.ErrorIs(t, err, security.ErrIntegrity, "flipping byte %d must fail authentication", i)
	}
}

func TestEncrypterRejectsWrongKey(t *testing.T) {
	enc, err := security.NewEncrypter(testKey(0x42))
	require.NoError(t, err)
	other, err := security.NewEncrypter(testKey(0x43))
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	require.ErrorIs(t, err, security.ErrIntegrity)
}

func TestEncrypterRejectsShortInput(t *testing.T) {
	enc, err := security.NewEncrypter(testKey(0x42))
	require.NoError(t, err)

	for _, size := range []int{0, 1, 12, 27} {
		_, err := enc.Decrypt(make([]byte, size))
		require.ErrorIs(t, err, security.ErrMalformed, "input of %d bytes must be malformed", size)
	}
}

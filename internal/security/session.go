package security

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/kdrag0n/earlypilot/internal/domain"
)

// PatronSession is the payload of the session cookie: exactly the external
// user id and the OAuth access token, opaque to the client.
type PatronSession struct {
	PatreonUserID string `json:"patreonUserId"`
	AccessToken   string `json:"accessToken"`
}

// SessionCodec seals and opens patron session cookies with
// XChaCha20-Poly1305 under a key independent from the grant key.
type SessionCodec struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	nonceSize int
}

// NewSessionCodec builds a codec over a 32-byte session key.
func NewSessionCodec(key []byte) (*SessionCodec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid session key size %d, expected %d bytes", len(key), chacha20poly1305.KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init session aead: %w", err)
	}
	return &SessionCodec{aead: aead, nonceSize: chacha20poly1305.NonceSizeX}, nil
}

// Encode seals the session into a cookie-safe string.
func (c *SessionCodec) Encode(session PatronSession) (string, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return "", err
	}

	nonce, err := randomBytes(c.nonceSize)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, payload, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a cookie value. Any failure collapses to
// domain.ErrInvalidToken; the cookie is attacker-controlled input.
func (c *SessionCodec) Decode(value string) (PatronSession, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(sealed) < c.nonceSize {
		return PatronSession{}, domain.ErrInvalidToken
	}

	payload, err := c.aead.Open(nil, sealed[:c.nonceSize], sealed[c.nonceSize:], nil)
	if err != nil {
		return PatronSession{}, domain.ErrInvalidToken
	}

	var session PatronSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return PatronSession{}, domain.ErrInvalidToken
	}
	return session, nil
}

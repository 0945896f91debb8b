package security

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/kdrag0n/earlypilot/internal/domain"
)

// grantInfo is the only claim carried by a capability token. Semantic fields
// (path, tag, expiry) stay in storage so revocation and re-scoping never
// require re-issuing tokens.
type grantInfo struct {
	GrantID int `json:"grantId"`
}

// GrantCodec turns grant ids into opaque URL-safe capability tokens and back.
type GrantCodec struct {
	encrypter *Encrypter
}

// NewGrantCodec builds a codec over a 32-byte grant key.
func NewGrantCodec(key []byte) (*GrantCodec, error) {
	enc, err := NewEncrypter(key)
	if err != nil {
		return nil, err
	}
	return &GrantCodec{encrypter: enc}, nil
}

// Issue encodes a capability token referencing grantID.
func (c *GrantCodec) Issue(grantID int) (string, error) {
	payload, err := json.Marshal(grantInfo{GrantID: grantID})
	if err != nil {
		return "", err
	}

	// Pad to the nearest 8-byte boundary so ciphertext length does not leak
	// the claim size.
	if rem := len(payload) % 8; rem != 0 {
		payload = append(payload, strings.Repeat(" ", 8-rem)...)
	}

	sealed, err := c.encrypter.Encrypt(payload)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Redeem decodes a capability token and returns the referenced grant id.
// Every failure mode (bad base64, bad ciphertext, bad JSON) collapses to
// domain.ErrInvalidToken: all of these are attacker-controlled inputs on
// unauthenticated requests and must be indistinguishable.
func (c *GrantCodec) Redeem(token string) (int, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		// Tolerate tokens minted with standard or padded alphabets.
		sealed, err = base64.StdEncoding.DecodeString(token)
		if err != nil {
			return 0, domain.ErrInvalidToken
		}
	}

	payload, err := c.encrypter.Decrypt(sealed)
	if err != nil {
		return 0, domain.ErrInvalidToken
	}

	var info grantInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return 0, domain.ErrInvalidToken
	}
	return info.GrantID, nil
}

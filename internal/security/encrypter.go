package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// AES-256-GCM
const (
	KeyBytes   = 32
	nonceBytes = 12
	tagBytes   = 16
)

var (
	// ErrIntegrity means the ciphertext failed authentication: tampered data
	// or the wrong key.
	ErrIntegrity = errors.New("ciphertext integrity check failed")

	// ErrMalformed means the input is too short or otherwise not a valid
	// ciphertext envelope. Callers must treat it exactly like ErrIntegrity
	// when talking to users.
	ErrMalformed = errors.New("malformed ciphertext")
)

// Encrypter performs authenticated encryption with a process-wide 256-bit
// key. Each encryption uses a fresh random 96-bit nonce prepended to the
// ciphertext; the 128-bit tag is verified on decryption. The key has no
// rotation mechanism: losing it invalidates every outstanding token.
type Encrypter struct {
	aead cipher.AEAD
}

// NewEncrypter builds an AES-256-GCM encrypter. The key must be exactly 32
// bytes.
func NewEncrypter(key []byte) (*Encrypter, error) {
	if len(key) != KeyBytes {
		return nil, fmt.Errorf("invalid key size %d, expected %d bytes", len(key), KeyBytes)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &Encrypter{aead: aead}, nil
}

// Encrypt seals plaintext and returns nonce || ciphertext || tag.
func (e *Encrypter) Encrypt(plaintext []byte) ([]byte, error) {
	nonce, err := randomBytes(nonceBytes)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Decrypt opens data produced by Encrypt. It returns ErrMalformed for inputs
// too short to contain a nonce and tag, and ErrIntegrity when authentication
// fails.
func (e *Encrypter) Decrypt(data []byte) ([]byte, error) {
	if len(data) < nonceBytes+tagBytes {
		return nil, ErrMalformed
	}

	plaintext, err := e.aead.Open(nil, data[:nonceBytes], data[nonceBytes:], nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

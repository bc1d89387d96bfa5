// Package secretbox seals JSON payloads into opaque, authenticated strings.
//
// Refresh tokens, authorization codes and device codes travel to clients in this
// form. The output is base64url(nonce || ciphertext) with an XChaCha20-Poly1305 AEAD,
// so any tampering or foreign key yields ErrInvalidPayload and nothing else.
package secretbox

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of an encryption key in bytes
const KeySize = chacha20poly1305.KeySize

// ErrInvalidPayload is returned for every undecryptable input
var ErrInvalidPayload = errors.New("payload cannot be decrypted")

// Box encrypts and decrypts payloads with a single symmetric key
type Box struct {
	aead cipher.AEAD
}

// New creates a Box from a raw 32-byte key
func New(key []byte) (*Box, error) {
	const op = "secretbox.New"
	if len(key) != KeySize {
		return nil, fmt.Errorf("%s: key must be %d bytes, got %d", op, KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Box{aead: aead}, nil
}

// NewFromString accepts a base64 (std or url, padded or raw) encoded key
func NewFromString(encoded string) (*Box, error) {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if key, err := enc.DecodeString(encoded); err == nil && len(key) == KeySize {
			return New(key)
		}
	}
	return nil, fmt.Errorf("secretbox.NewFromString: key must decode to %d bytes", KeySize)
}

// GenerateKey returns a fresh random key
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("secretbox.GenerateKey: %w", err)
	}
	return key, nil
}

// Seal serializes payload to JSON and encrypts it
func (b *Box) Seal(payload any) (string, error) {
	const op = "secretbox.Seal"
	plain, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plain)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	sealed := b.aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts token into dst. Every failure is ErrInvalidPayload.
func (b *Box) Open(token string, dst any) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrInvalidPayload
	}
	if len(raw) < b.aead.NonceSize()+b.aead.Overhead() {
		return ErrInvalidPayload
	}
	nonce, ciphertext := raw[:b.aead.NonceSize()], raw[b.aead.NonceSize():]
	plain, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(plain, dst); err != nil {
		return ErrInvalidPayload
	}
	return nil
}

package jwt

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"os"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"
)

// RSASigner signs access tokens locally with RS256
type RSASigner struct {
	key  *rsa.PrivateKey
	kid  string
	keys jwk.Set
}

// NewRSASigner wraps key; the key id is the RFC 7638 thumbprint of its public half
func NewRSASigner(key *rsa.PrivateKey) (*RSASigner, error) {
	const op = "jwt.NewRSASigner"
	pub, err := jwk.New(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	thumb, err := pub.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	kid := base64.RawURLEncoding.EncodeToString(thumb)
	_ = pub.Set(jwk.KeyIDKey, kid)
	_ = pub.Set(jwk.AlgorithmKey, jwa.RS256)
	_ = pub.Set(jwk.KeyUsageKey, "sig")

	set := jwk.NewSet()
	set.Add(pub)
	return &RSASigner{key: key, kid: kid, keys: set}, nil
}

// LoadRSASigner reads a PEM encoded RSA private key (PKCS1 or PKCS8)
func LoadRSASigner(path string) (*RSASigner, error) {
	const op = "jwt.LoadRSASigner"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	key, err := jwtv5.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return NewRSASigner(key)
}

// GenerateRSASigner creates an ephemeral key pair; tokens die with the process
func GenerateRSASigner(bits int) (*RSASigner, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("jwt.GenerateRSASigner: %w", err)
	}
	return NewRSASigner(key)
}

// KeyID returns the kid placed in token headers
func (s *RSASigner) KeyID() string {
	return s.kid
}

// Sign creates a signed JWT from claims
func (s *RSASigner) Sign(_ context.Context, claims *AccessClaims) (string, error) {
	token := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwt.RSASigner.Sign: %w", err)
	}
	return signed, nil
}

// PublicKeys returns the JWK set with the signer's public key
func (s *RSASigner) PublicKeys(_ context.Context) (jwk.Set, error) {
	return s.keys, nil
}

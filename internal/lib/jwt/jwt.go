// Package jwt signs and verifies self-describing access tokens.
package jwt

import (
	"context"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/jwk"
)

var (
	ErrTokenInvalid         = errors.New("token is invalid")
	ErrTokenExpired         = errors.New("token is expired")
	ErrTokenClaimsIncorrect = errors.New("token claims are incorrect")
	ErrKeyNotFound          = errors.New("verification key not found")
)

// AccessClaims is the claims set carried by an access token
type AccessClaims struct {
	Scopes []string `json:"scopes"`
	jwtv5.RegisteredClaims
}

// NewAccessClaims builds claims for token id issued to clientID on behalf of subject
func NewAccessClaims(
	id string,
	issuer string,
	clientID string,
	subject string,
	scopes []string,
	issuedAt time.Time,
	expiresAt time.Time,
) *AccessClaims {
	if scopes == nil {
		scopes = []string{}
	}
	return &AccessClaims{
		Scopes: scopes,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        id,
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwtv5.ClaimStrings{clientID},
			IssuedAt:  jwtv5.NewNumericDate(issuedAt),
			NotBefore: jwtv5.NewNumericDate(issuedAt),
			ExpiresAt: jwtv5.NewNumericDate(expiresAt),
		},
	}
}

// ClientID returns the first audience, which is always the client the token was issued to
func (c *AccessClaims) ClientID() string {
	if len(c.Audience) == 0 {
		return ""
	}
	return c.Audience[0]
}

// Signer signs access token claims with a private key it never exposes
type Signer interface {
	Sign(ctx context.Context, claims *AccessClaims) (string, error)
	KeySource
}

// KeySource publishes the public keys needed to verify signatures
type KeySource interface {
	PublicKeys(ctx context.Context) (jwk.Set, error)
}

package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"
)

// Verifier checks signature, expiry and claims of access tokens using public keys only
type Verifier struct {
	keys     KeySource
	claims   ClaimsController
	issuer   string
	now      func() time.Time
	audience string
}

// VerifierOption tunes a Verifier
type VerifierOption func(*Verifier)

// WithIssuer requires the iss claim to equal issuer
func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) { v.issuer = issuer }
}

// WithAudience requires aud to contain audience
func WithAudience(audience string) VerifierOption {
	return func(v *Verifier) { v.audience = audience }
}

// WithTimeFunc replaces the clock used for exp/nbf/iat checks
func WithTimeFunc(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier reading keys from keys
func NewVerifier(keys KeySource, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		keys:   keys,
		claims: NewClaimsController(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify parses token and returns its claims.
// Expired tokens yield ErrTokenExpired regardless of signature validity order.
func (v *Verifier) Verify(ctx context.Context, token string) (*AccessClaims, error) {
	set, err := v.keys.PublicKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("jwt.Verify: %w", err)
	}

	parserOpts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{jwa.RS256.String(), jwa.ES256.String()}),
		jwtv5.WithTimeFunc(v.now),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithIssuedAt(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwtv5.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwtv5.WithAudience(v.audience))
	}

	claims := &AccessClaims{}
	parsed, err := jwtv5.ParseWithClaims(token, claims, keyfunc(set), parserOpts...)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if err := v.claims.IsClaimsValid(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// keyfunc resolves the verification key by kid, falling back to a lone key
func keyfunc(set jwk.Set) jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (interface{}, error) {
		var key jwk.Key
		kid, _ := t.Header["kid"].(string)
		if kid != "" {
			k, ok := set.LookupKeyID(kid)
			if !ok {
				return nil, ErrKeyNotFound
			}
			key = k
		} else {
			if set.Len() != 1 {
				return nil, ErrKeyNotFound
			}
			key, _ = set.Get(0)
		}

		switch key.KeyType() {
		case jwa.RSA:
			var pub rsa.PublicKey
			if err := key.Raw(&pub); err != nil {
				return nil, err
			}
			return &pub, nil
		case jwa.EC:
			var pub ecdsa.PublicKey
			if err := key.Raw(&pub); err != nil {
				return nil, err
			}
			return &pub, nil
		default:
			return nil, fmt.Errorf("unsupported key type %s", key.KeyType())
		}
	}
}

// Package pkce verifies Proof Key for Code Exchange pairs (RFC 7636).
package pkce

import (
	"crypto/subtle"
	"errors"
	"regexp"

	"golang.org/x/oauth2"
)

const (
	MethodPlain = "plain"
	MethodS256  = "S256"
)

var (
	ErrUnsupportedMethod = errors.New("unsupported code challenge method")
	ErrMalformed         = errors.New("code challenge or verifier is malformed")
	ErrMismatch          = errors.New("code verifier does not match challenge")
)

// verifierPattern covers both verifiers and challenges (RFC 7636 sections 4.1, 4.2)
var verifierPattern = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

// SupportedMethod reports whether the server understands method
func SupportedMethod(method string) bool {
	return method == MethodPlain || method == MethodS256
}

// ValidChallenge checks challenge syntax
func ValidChallenge(challenge string) bool {
	return verifierPattern.MatchString(challenge)
}

// Verify compares verifier against the stored challenge using method
func Verify(challenge, method, verifier string) error {
	if !verifierPattern.MatchString(verifier) {
		return ErrMalformed
	}
	var computed string
	switch method {
	case MethodS256:
		computed = oauth2.S256ChallengeFromVerifier(verifier)
	case MethodPlain, "":
		computed = verifier
	default:
		return ErrUnsupportedMethod
	}
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return ErrMismatch
	}
	return nil
}

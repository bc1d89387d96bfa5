package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ssoengine/internal/lib/jwt"
)

// TokenInfo describes a verified access token
type TokenInfo struct {
	TokenID   string
	ClientID  string
	Subject   string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasScope reports whether the token carries scope
func (t *TokenInfo) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ValidateAuthenticatedRequest verifies the bearer token of a resource server request
func (s *Server) ValidateAuthenticatedRequest(ctx context.Context, r *http.Request) (*TokenInfo, error) {
	const op = "oauth.Server.ValidateAuthenticatedRequest"
	log := s.log.With(slog.String("op", op))

	token := bearerToken(r)
	if token == "" {
		return nil, s.reject(log, InvalidToken("Missing \"Authorization\" bearer token"))
	}
	info, err := s.verifyAccessToken(ctx, token)
	if err != nil {
		return nil, s.reject(log, err)
	}
	return info, nil
}

// verifyAccessToken checks signature, expiry and the revocation list
func (e *engine) verifyAccessToken(ctx context.Context, token string) (*TokenInfo, error) {
	claims, err := e.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, InvalidToken("Access token has expired")
		}
		return nil, InvalidToken("Access token could not be verified")
	}
	revoked, err := e.AccessTokens.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, ServerError(err)
	}
	if revoked {
		return nil, InvalidToken("Access token has been revoked")
	}
	return &TokenInfo{
		TokenID:   claims.ID,
		ClientID:  claims.ClientID(),
		Subject:   claims.Subject,
		Scopes:    claims.Scopes,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

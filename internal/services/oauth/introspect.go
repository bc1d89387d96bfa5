package oauth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

const (
	hintAccessToken  = "access_token"
	hintRefreshToken = "refresh_token"
)

// IntrospectionResponse is the RFC 7662 body; every field but Active is omitted for inactive tokens
type IntrospectionResponse struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	Exp       int64    `json:"exp,omitempty"`
	Iat       int64    `json:"iat,omitempty"`
	Nbf       int64    `json:"nbf,omitempty"`
	Sub       string   `json:"sub,omitempty"`
	Aud       []string `json:"aud,omitempty"`
	Iss       string   `json:"iss,omitempty"`
	Jti       string   `json:"jti,omitempty"`
}

// Introspect reports whether a token is active to an authenticated client
func (s *Server) Introspect(ctx context.Context, r *http.Request) (*Response, error) {
	const op = "oauth.Server.Introspect"
	log := s.log.With(slog.String("op", op))

	client, err := s.authenticateClient(ctx, r, "")
	if err != nil {
		return nil, s.reject(log, err)
	}
	token := bodyParam(r, "token")
	if token == "" {
		return nil, s.reject(log, InvalidRequest("token", ""))
	}

	var result *IntrospectionResponse
	for _, kind := range tokenKinds(bodyParam(r, "token_type_hint")) {
		switch kind {
		case hintAccessToken:
			result, err = s.introspectAccessToken(ctx, token)
		case hintRefreshToken:
			result, err = s.introspectRefreshToken(ctx, token)
		}
		if err != nil {
			return nil, s.reject(log, err)
		}
		if result != nil {
			break
		}
	}
	if result == nil {
		result = &IntrospectionResponse{Active: false}
	}
	log.Info("token introspected", slog.String("client_id", client.ID), slog.Bool("active", result.Active))
	return jsonResponse(http.StatusOK, result)
}

// tokenKinds orders lookups so the hinted kind goes first
func tokenKinds(hint string) []string {
	if hint == hintRefreshToken {
		return []string{hintRefreshToken, hintAccessToken}
	}
	return []string{hintAccessToken, hintRefreshToken}
}

// introspectAccessToken returns nil for anything that is not an active access token
func (e *engine) introspectAccessToken(ctx context.Context, token string) (*IntrospectionResponse, error) {
	info, err := e.verifyAccessToken(ctx, token)
	if err != nil {
		if AsError(err).Code == ErrServerError {
			return nil, err
		}
		return nil, nil
	}
	return &IntrospectionResponse{
		Active:    true,
		Scope:     strings.Join(info.Scopes, scopeDelimiter),
		ClientID:  info.ClientID,
		TokenType: "Bearer",
		Exp:       info.ExpiresAt.Unix(),
		Iat:       info.IssuedAt.Unix(),
		Nbf:       info.IssuedAt.Unix(),
		Sub:       info.Subject,
		Aud:       []string{info.ClientID},
		Iss:       e.cfg.Issuer,
		Jti:       info.TokenID,
	}, nil
}

func (e *engine) introspectRefreshToken(ctx context.Context, token string) (*IntrospectionResponse, error) {
	if e.RefreshTokens == nil {
		return nil, nil
	}
	var payload refreshTokenPayload
	if err := e.Encrypter.Open(token, &payload); err != nil {
		return nil, nil
	}
	if expired(payload.ExpireTime, e.now()) {
		return nil, nil
	}
	revoked, err := e.RefreshTokens.IsRefreshTokenRevoked(ctx, payload.RefreshTokenID)
	if err != nil {
		return nil, ServerError(err)
	}
	if revoked {
		return nil, nil
	}
	sub := payload.UserID
	if sub == "" {
		sub = payload.ClientID
	}
	return &IntrospectionResponse{
		Active:    true,
		Scope:     strings.Join(payload.Scopes, scopeDelimiter),
		ClientID:  payload.ClientID,
		TokenType: hintRefreshToken,
		Exp:       payload.ExpireTime,
		Sub:       sub,
		Aud:       []string{payload.ClientID},
		Iss:       e.cfg.Issuer,
		Jti:       payload.RefreshTokenID,
	}, nil
}

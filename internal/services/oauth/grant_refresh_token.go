package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ssoengine/internal/storage"
)

// refreshTokenGrant rotates a refresh token into a new token pair
type refreshTokenGrant struct {
	*engine
}

func (g *refreshTokenGrant) Identifier() GrantType {
	return GrantRefreshToken
}

func (g *refreshTokenGrant) CanRespondToAccessTokenRequest(r *http.Request) bool {
	return bodyParam(r, "grant_type") == string(g.Identifier())
}

func (g *refreshTokenGrant) RespondToAccessTokenRequest(
	ctx context.Context,
	r *http.Request,
	accessTokenTTL time.Duration,
) (*TokenResponse, error) {
	const op = "oauth.refreshTokenGrant.RespondToAccessTokenRequest"
	log := g.log.With(slog.String("op", op))

	client, err := g.authenticateClient(ctx, r, g.Identifier())
	if err != nil {
		return nil, err
	}

	encrypted := bodyParam(r, "refresh_token")
	if encrypted == "" {
		return nil, InvalidRequest("refresh_token", "")
	}

	var payload refreshTokenPayload
	if err := g.Encrypter.Open(encrypted, &payload); err != nil {
		return nil, InvalidGrant("Cannot decrypt the refresh token")
	}
	if payload.ClientID != client.ID {
		log.Warn("refresh token presented by another client", slog.String("client_id", client.ID))
		return nil, InvalidGrant("Token is not linked to client")
	}
	if expired(payload.ExpireTime, g.now()) {
		return nil, InvalidGrant("Token has expired")
	}
	revoked, err := g.RefreshTokens.IsRefreshTokenRevoked(ctx, payload.RefreshTokenID)
	if err != nil {
		return nil, ServerError(err)
	}
	if revoked {
		return nil, InvalidGrant("Token has been revoked")
	}

	scopes, err := g.resolveScopes(ctx, payload.Scopes)
	if err != nil {
		return nil, err
	}
	if requested := splitScopes(bodyParam(r, "scope")); len(requested) > 0 {
		narrowed, err := g.resolveScopes(ctx, requested)
		if err != nil {
			return nil, err
		}
		if scopes, err = narrowScopes(narrowed, payload.Scopes); err != nil {
			return nil, err
		}
	}

	if err := g.RefreshTokens.ConsumeRefreshToken(ctx, payload.RefreshTokenID); err != nil {
		if errors.Is(err, storage.ErrTokenConsumed) || errors.Is(err, storage.ErrTokenNotFound) {
			log.Warn("refresh token replayed", slog.String("refresh_token_id", payload.RefreshTokenID))
			return nil, InvalidGrant("Token has been revoked")
		}
		return nil, ServerError(err)
	}
	if err := g.RefreshTokens.RevokeRefreshToken(ctx, payload.RefreshTokenID); err != nil {
		return nil, ServerError(err)
	}
	if err := g.AccessTokens.RevokeAccessToken(ctx, payload.AccessTokenID); err != nil {
		return nil, ServerError(err)
	}

	return g.issueTokenPair(ctx, accessTokenTTL, client, payload.UserID, scopes, true)
}

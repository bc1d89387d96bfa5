package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/lib/jwt"
	"ssoengine/internal/storage"
)

var errIdentifierExhausted = errors.New("unable to generate a unique identifier")

// persistUnique generates identifiers until save accepts one or the retry budget runs out
func (e *engine) persistUnique(ctx context.Context, save func(id string) error) (string, error) {
	const op = "oauth.persistUnique"
	log := e.log.With(slog.String("op", op))

	for attempt := 0; attempt < e.cfg.IdentifierRetries; attempt++ {
		id, err := e.newID()
		if err != nil {
			return "", ServerError(fmt.Errorf("%s: %w", op, err))
		}
		err = save(id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, storage.ErrDuplicateIdentifier) {
			return "", ServerError(fmt.Errorf("%s: %w", op, err))
		}
		log.Warn("identifier collision", slog.Int("attempt", attempt+1))
	}
	return "", ServerError(fmt.Errorf("%s: %w", op, errIdentifierExhausted))
}

// issueAccessToken persists a new access token record and returns it signed
func (e *engine) issueAccessToken(
	ctx context.Context,
	ttl time.Duration,
	client *models.Client,
	userID string,
	scopes []models.Scope,
) (*models.AccessToken, string, error) {
	now := e.now()
	token := &models.AccessToken{
		ClientID:  client.ID,
		UserID:    userID,
		Scopes:    scopes,
		ExpiresAt: now.Add(ttl),
	}
	_, err := e.persistUnique(ctx, func(id string) error {
		token.ID = id
		return e.AccessTokens.SaveAccessToken(ctx, token)
	})
	if err != nil {
		return nil, "", err
	}

	claims := jwt.NewAccessClaims(
		token.ID,
		e.cfg.Issuer,
		token.ClientID,
		token.Subject(),
		models.ScopeIDs(scopes),
		now,
		token.ExpiresAt,
	)
	signed, err := e.Signer.Sign(ctx, claims)
	if err != nil {
		return nil, "", ServerError(err)
	}
	return token, signed, nil
}

// issueRefreshToken persists a refresh token bound to access and returns it sealed
func (e *engine) issueRefreshToken(ctx context.Context, access *models.AccessToken) (*models.RefreshToken, string, error) {
	token := &models.RefreshToken{
		AccessTokenID: access.ID,
		ClientID:      access.ClientID,
		UserID:        access.UserID,
		Scopes:        access.Scopes,
		ExpiresAt:     e.now().Add(e.cfg.RefreshTokenTTL),
	}
	_, err := e.persistUnique(ctx, func(id string) error {
		token.ID = id
		return e.RefreshTokens.SaveRefreshToken(ctx, token)
	})
	if err != nil {
		return nil, "", err
	}

	sealed, err := e.Encrypter.Seal(refreshTokenPayload{
		ClientID:       token.ClientID,
		RefreshTokenID: token.ID,
		AccessTokenID:  token.AccessTokenID,
		Scopes:         models.ScopeIDs(token.Scopes),
		UserID:         token.UserID,
		ExpireTime:     token.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, "", ServerError(err)
	}
	return token, sealed, nil
}

// refreshTokensEnabled reports whether issued refresh tokens could ever be redeemed
func (e *engine) refreshTokensEnabled() bool {
	return e.RefreshTokens != nil && e.cfg.grantEnabled(GrantRefreshToken)
}

// issueTokenPair issues an access token and, when enabled, a refresh token
func (e *engine) issueTokenPair(
	ctx context.Context,
	ttl time.Duration,
	client *models.Client,
	userID string,
	scopes []models.Scope,
	withRefresh bool,
) (*TokenResponse, error) {
	access, signed, err := e.issueAccessToken(ctx, ttl, client, userID, scopes)
	if err != nil {
		return nil, err
	}
	resp := &TokenResponse{
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl / time.Second),
		AccessToken: signed,
		Scope:       joinScopes(scopes),
	}
	if withRefresh && e.refreshTokensEnabled() {
		_, sealed, err := e.issueRefreshToken(ctx, access)
		if err != nil {
			return nil, err
		}
		resp.RefreshToken = sealed
	}
	return resp, nil
}

package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ssoengine/internal/storage"
)

// passwordGrant exchanges resource owner credentials for tokens
type passwordGrant struct {
	*engine
}

func (g *passwordGrant) Identifier() GrantType {
	return GrantPassword
}

func (g *passwordGrant) CanRespondToAccessTokenRequest(r *http.Request) bool {
	return bodyParam(r, "grant_type") == string(g.Identifier())
}

func (g *passwordGrant) RespondToAccessTokenRequest(
	ctx context.Context,
	r *http.Request,
	accessTokenTTL time.Duration,
) (*TokenResponse, error) {
	const op = "oauth.passwordGrant.RespondToAccessTokenRequest"
	log := g.log.With(slog.String("op", op))

	client, err := g.authenticateClient(ctx, r, g.Identifier())
	if err != nil {
		return nil, err
	}
	scopes, err := g.validateScopes(ctx, bodyParam(r, "scope"))
	if err != nil {
		return nil, err
	}

	username := bodyParam(r, "username")
	if username == "" {
		return nil, InvalidRequest("username", "")
	}
	password := bodyParam(r, "password")
	if password == "" {
		return nil, InvalidRequest("password", "")
	}

	user, err := g.Users.UserByCredentials(ctx, username, password, string(g.Identifier()), client)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) || errors.Is(err, storage.ErrInvalidCredentials) {
			log.Info("invalid user credentials", slog.String("client_id", client.ID))
			return nil, InvalidCredentials()
		}
		return nil, ServerError(err)
	}
	if user == nil {
		return nil, InvalidCredentials()
	}

	scopes, err = g.finalizeScopes(ctx, scopes, g.Identifier(), client, user.ID)
	if err != nil {
		return nil, err
	}
	return g.issueTokenPair(ctx, accessTokenTTL, client, user.ID, scopes, true)
}

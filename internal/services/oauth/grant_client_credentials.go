package oauth

import (
	"context"
	"net/http"
	"time"
)

// clientCredentialsGrant issues access tokens to clients acting on their own behalf
type clientCredentialsGrant struct {
	*engine
}

func (g *clientCredentialsGrant) Identifier() GrantType {
	return GrantClientCredentials
}

func (g *clientCredentialsGrant) CanRespondToAccessTokenRequest(r *http.Request) bool {
	return bodyParam(r, "grant_type") == string(g.Identifier())
}

func (g *clientCredentialsGrant) RespondToAccessTokenRequest(
	ctx context.Context,
	r *http.Request,
	accessTokenTTL time.Duration,
) (*TokenResponse, error) {
	client, err := g.authenticateClient(ctx, r, g.Identifier())
	if err != nil {
		return nil, err
	}
	if !client.IsConfidential() {
		_, _, basic := clientCredentials(r)
		return nil, InvalidClient(basic)
	}

	scopes, err := g.validateScopes(ctx, bodyParam(r, "scope"))
	if err != nil {
		return nil, err
	}
	scopes, err = g.finalizeScopes(ctx, scopes, g.Identifier(), client, "")
	if err != nil {
		return nil, err
	}

	return g.issueTokenPair(ctx, accessTokenTTL, client, "", scopes, false)
}

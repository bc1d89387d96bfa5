package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// implicitGrant returns an access token in the redirect uri fragment
type implicitGrant struct {
	*engine
}

func (g *implicitGrant) Identifier() GrantType {
	return GrantImplicit
}

// CanRespondToAccessTokenRequest is always false: implicit tokens never come from the token endpoint
func (g *implicitGrant) CanRespondToAccessTokenRequest(*http.Request) bool {
	return false
}

func (g *implicitGrant) RespondToAccessTokenRequest(context.Context, *http.Request, time.Duration) (*TokenResponse, error) {
	return nil, UnsupportedGrantType()
}

func (g *implicitGrant) CanRespondToAuthorizationRequest(r *http.Request) bool {
	return authorizeParam(r, "response_type") == "token" && authorizeParam(r, "client_id") != ""
}

func (g *implicitGrant) ValidateAuthorizationRequest(ctx context.Context, r *http.Request) (*AuthorizationRequest, error) {
	return g.validateAuthorizationRequest(ctx, r, g.Identifier(), "token", true)
}

func (g *implicitGrant) CompleteAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*Response, error) {
	if req.UserID == "" {
		return nil, ServerError(errors.New("an authenticated user must be set on the authorization request"))
	}
	if !req.Approved {
		return deniedResponse(req, true), nil
	}
	redirectErr := func(err error) error {
		return AsError(err).WithRedirect(req.RedirectURI, req.State, true)
	}

	scopes, err := g.finalizeScopes(ctx, req.Scopes, g.Identifier(), req.Client, req.UserID)
	if err != nil {
		return nil, redirectErr(err)
	}
	ttl := g.cfg.accessTokenTTL(g.Identifier())
	_, signed, err := g.issueAccessToken(ctx, ttl, req.Client, req.UserID, scopes)
	if err != nil {
		return nil, redirectErr(err)
	}

	params := url.Values{}
	params.Set("access_token", signed)
	params.Set("token_type", "Bearer")
	params.Set("expires_in", strconv.FormatInt(int64(ttl/time.Second), 10))
	if req.State != "" {
		params.Set("state", req.State)
	}
	return redirectResponse(makeRedirectURI(req.RedirectURI, params, true)), nil
}

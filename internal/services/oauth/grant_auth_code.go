package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/lib/pkce"
	"ssoengine/internal/storage"
)

// authCodeGrant is the two phase authorization code flow with optional PKCE
type authCodeGrant struct {
	*engine
}

func (g *authCodeGrant) Identifier() GrantType {
	return GrantAuthorizationCode
}

func (g *authCodeGrant) CanRespondToAuthorizationRequest(r *http.Request) bool {
	return authorizeParam(r, "response_type") == "code" && authorizeParam(r, "client_id") != ""
}

func (g *authCodeGrant) ValidateAuthorizationRequest(ctx context.Context, r *http.Request) (*AuthorizationRequest, error) {
	req, err := g.validateAuthorizationRequest(ctx, r, g.Identifier(), "code", false)
	if err != nil {
		return nil, err
	}
	redirectErr := func(e *Error) error {
		return e.WithRedirect(req.RedirectURI, req.State, false)
	}

	challenge := authorizeParam(r, "code_challenge")
	if challenge == "" {
		if g.cfg.RequireCodeChallengeForPublicClients && !req.Client.IsConfidential() {
			return nil, redirectErr(InvalidRequest("code_challenge", "Code challenge must be provided for public clients"))
		}
		return req, nil
	}

	method := authorizeParam(r, "code_challenge_method")
	if method == "" {
		method = pkce.MethodPlain
	}
	if !pkce.SupportedMethod(method) {
		return nil, redirectErr(InvalidRequest(
			"code_challenge_method",
			"Code challenge method must be one of `plain` or `S256`",
		))
	}
	if !pkce.ValidChallenge(challenge) {
		return nil, redirectErr(InvalidRequest(
			"code_challenge",
			"Code challenge must follow the specifications of RFC-7636.",
		))
	}
	req.CodeChallenge = challenge
	req.CodeChallengeMethod = method
	return req, nil
}

func (g *authCodeGrant) CompleteAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*Response, error) {
	if req.UserID == "" {
		return nil, ServerError(errors.New("an authenticated user must be set on the authorization request"))
	}
	if !req.Approved {
		return deniedResponse(req, false), nil
	}
	redirectErr := func(err error) error {
		return AsError(err).WithRedirect(req.RedirectURI, req.State, false)
	}

	scopes, err := g.finalizeScopes(ctx, req.Scopes, g.Identifier(), req.Client, req.UserID)
	if err != nil {
		return nil, redirectErr(err)
	}

	storedRedirect := ""
	if req.RedirectURIProvided {
		storedRedirect = req.RedirectURI
	}
	code := &models.AuthorizationCode{
		ClientID:            req.Client.ID,
		UserID:              req.UserID,
		RedirectURI:         storedRedirect,
		Scopes:              scopes,
		ExpiresAt:           g.now().Add(g.cfg.AuthCodeTTL),
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	}
	if _, err := g.persistUnique(ctx, func(id string) error {
		code.ID = id
		return g.AuthCodes.SaveAuthCode(ctx, code)
	}); err != nil {
		return nil, redirectErr(err)
	}

	sealed, err := g.Encrypter.Seal(authCodePayload{
		ClientID:            code.ClientID,
		RedirectURI:         code.RedirectURI,
		AuthCodeID:          code.ID,
		Scopes:              models.ScopeIDs(code.Scopes),
		UserID:              code.UserID,
		ExpireTime:          code.ExpiresAt.Unix(),
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: code.CodeChallengeMethod,
	})
	if err != nil {
		return nil, redirectErr(ServerError(err))
	}

	params := url.Values{}
	params.Set("code", sealed)
	if req.State != "" {
		params.Set("state", req.State)
	}
	return redirectResponse(makeRedirectURI(req.RedirectURI, params, false)), nil
}

func (g *authCodeGrant) CanRespondToAccessTokenRequest(r *http.Request) bool {
	return bodyParam(r, "grant_type") == string(g.Identifier())
}

// RespondToAccessTokenRequest redeems a code. A code that decrypts and exists is consumed
// before any other check, so a failed redemption can never be retried.
func (g *authCodeGrant) RespondToAccessTokenRequest(
	ctx context.Context,
	r *http.Request,
	accessTokenTTL time.Duration,
) (*TokenResponse, error) {
	const op = "oauth.authCodeGrant.RespondToAccessTokenRequest"
	log := g.log.With(slog.String("op", op))

	client, err := g.authenticateClient(ctx, r, g.Identifier())
	if err != nil {
		return nil, err
	}

	encrypted := bodyParam(r, "code")
	if encrypted == "" {
		return nil, InvalidRequest("code", "")
	}
	var payload authCodePayload
	if err := g.Encrypter.Open(encrypted, &payload); err != nil {
		return nil, InvalidGrant("Cannot decrypt the authorization code")
	}

	if err := g.AuthCodes.ConsumeAuthCode(ctx, payload.AuthCodeID); err != nil {
		if errors.Is(err, storage.ErrTokenConsumed) || errors.Is(err, storage.ErrTokenNotFound) {
			log.Warn("authorization code replayed", slog.String("auth_code_id", payload.AuthCodeID))
			return nil, InvalidGrant("Authorization code has been revoked")
		}
		return nil, ServerError(err)
	}

	if payload.ClientID != client.ID {
		return nil, InvalidGrant("Authorization code was not issued to this client")
	}
	if expired(payload.ExpireTime, g.now()) {
		return nil, InvalidGrant("Authorization code has expired")
	}

	redirectURI := bodyParam(r, "redirect_uri")
	if payload.RedirectURI != "" {
		if redirectURI == "" {
			return nil, InvalidRequest("redirect_uri", "")
		}
		if redirectURI != payload.RedirectURI {
			return nil, InvalidGrant("Invalid redirect URI")
		}
	}

	verifier := bodyParam(r, "code_verifier")
	if payload.CodeChallenge != "" {
		if verifier == "" {
			return nil, InvalidRequest("code_verifier", "Check the `code_verifier` parameter")
		}
		if err := pkce.Verify(payload.CodeChallenge, payload.CodeChallengeMethod, verifier); err != nil {
			if errors.Is(err, pkce.ErrMalformed) {
				return nil, InvalidRequest("code_verifier", "Code Verifier must follow the specifications of RFC-7636.")
			}
			return nil, InvalidGrant("Failed to verify `code_verifier`.")
		}
	} else if verifier != "" {
		return nil, InvalidRequest("code_verifier", "code_verifier received when no code_challenge is present")
	}

	scopes, err := g.resolveScopes(ctx, payload.Scopes)
	if err != nil {
		return nil, err
	}
	return g.issueTokenPair(ctx, accessTokenTTL, client, payload.UserID, scopes, true)
}

package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"ssoengine/internal/domain/models"
)

// AuthorizationGrant is implemented by grants served from the authorize endpoint
type AuthorizationGrant interface {
	Grant
	CanRespondToAuthorizationRequest(r *http.Request) bool
	ValidateAuthorizationRequest(ctx context.Context, r *http.Request) (*AuthorizationRequest, error)
	CompleteAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*Response, error)
}

// AuthorizationRequest is a validated authorize call awaiting the user's decision.
// The host sets UserID and Approved before completing it.
type AuthorizationRequest struct {
	GrantType    GrantType
	ResponseType string
	Client       *models.Client
	// RedirectURI is where the response goes
	RedirectURI string
	// RedirectURIProvided records whether the client sent redirect_uri explicitly
	RedirectURIProvided bool
	State               string
	Scopes              []models.Scope

	CodeChallenge       string
	CodeChallengeMethod string

	UserID   string
	Approved bool
}

// ValidateAuthorizationRequest checks an authorize call before the host asks the user
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, r *http.Request) (*AuthorizationRequest, error) {
	const op = "oauth.Server.ValidateAuthorizationRequest"
	log := s.log.With(slog.String("op", op))

	for _, g := range s.grants {
		ag, ok := g.(AuthorizationGrant)
		if !ok || !ag.CanRespondToAuthorizationRequest(r) {
			continue
		}
		req, err := ag.ValidateAuthorizationRequest(ctx, r)
		if err != nil {
			return nil, s.reject(log, err)
		}
		return req, nil
	}
	return nil, s.reject(log, UnsupportedResponseType(authorizeParam(r, "response_type")))
}

// CompleteAuthorizationRequest builds the redirect after the user approved or denied
func (s *Server) CompleteAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*Response, error) {
	const op = "oauth.Server.CompleteAuthorizationRequest"
	log := s.log.With(slog.String("op", op))

	if req == nil {
		return nil, s.reject(log, ServerError(errors.New("authorization request is nil")))
	}
	g, ok := s.byType[req.GrantType]
	if !ok {
		return nil, s.reject(log, UnsupportedResponseType(req.ResponseType))
	}
	ag, ok := g.(AuthorizationGrant)
	if !ok {
		return nil, s.reject(log, UnsupportedResponseType(req.ResponseType))
	}
	resp, err := ag.CompleteAuthorizationRequest(ctx, req)
	if err != nil {
		return nil, s.reject(log, err)
	}
	log.Info("authorization request completed",
		slog.String("grant", string(req.GrantType)),
		slog.String("client_id", req.Client.ID),
		slog.Bool("approved", req.Approved),
	)
	if req.Approved && req.GrantType == GrantImplicit {
		s.Observer.TokenIssued(string(GrantImplicit))
	}
	return resp, nil
}

// validateAuthorizationRequest runs the checks shared by the code and implicit flows.
// Errors raised before the redirect uri is trusted are never redirected.
func (e *engine) validateAuthorizationRequest(
	ctx context.Context,
	r *http.Request,
	grant GrantType,
	responseType string,
	fragment bool,
) (*AuthorizationRequest, error) {
	clientID := authorizeParam(r, "client_id")
	if clientID == "" {
		return nil, InvalidRequest("client_id", "")
	}
	client, err := e.client(ctx, clientID, false)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(string(grant)) {
		return nil, InvalidClient(false)
	}

	redirectURI := authorizeParam(r, "redirect_uri")
	provided := redirectURI != ""
	if provided {
		if !client.HasRedirectURI(redirectURI) {
			return nil, InvalidClient(false)
		}
	} else {
		redirectURI = client.DefaultRedirectURI()
		if redirectURI == "" {
			return nil, InvalidClient(false)
		}
	}

	state := authorizeParam(r, "state")
	redirectErr := func(err error) error {
		return AsError(err).WithRedirect(redirectURI, state, fragment)
	}

	scopes, err := e.validateScopes(ctx, authorizeParam(r, "scope"))
	if err != nil {
		return nil, redirectErr(err)
	}

	return &AuthorizationRequest{
		GrantType:           grant,
		ResponseType:        responseType,
		Client:              client,
		RedirectURI:         redirectURI,
		RedirectURIProvided: provided,
		State:               state,
		Scopes:              scopes,
	}, nil
}

// deniedResponse is the access_denied redirect for a request the user refused
func deniedResponse(req *AuthorizationRequest, fragment bool) *Response {
	return AccessDenied("The user denied the request").
		WithRedirect(req.RedirectURI, req.State, fragment).
		Response()
}

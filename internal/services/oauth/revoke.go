package oauth

import (
	"context"
	"log/slog"
	"net/http"
)

// Revoke implements RFC 7009. The response is 200 with an empty body whether or not the
// token existed or belonged to the caller; only client authentication failures are reported.
func (s *Server) Revoke(ctx context.Context, r *http.Request) (*Response, error) {
	const op = "oauth.Server.Revoke"
	log := s.log.With(slog.String("op", op))

	client, err := s.authenticateClient(ctx, r, "")
	if err != nil {
		return nil, s.reject(log, err)
	}
	token := bodyParam(r, "token")
	if token == "" {
		return nil, s.reject(log, InvalidRequest("token", ""))
	}

	for _, kind := range tokenKinds(bodyParam(r, "token_type_hint")) {
		var done bool
		switch kind {
		case hintAccessToken:
			done, err = s.revokeAccessToken(ctx, client.ID, token)
		case hintRefreshToken:
			done, err = s.revokeRefreshToken(ctx, client.ID, token)
		}
		if err != nil {
			return nil, s.reject(log, err)
		}
		if done {
			log.Info("token revoked", slog.String("client_id", client.ID), slog.String("kind", kind))
			break
		}
	}
	return emptyResponse(), nil
}

// revokeAccessToken reports true when token was recognised as an access token
func (e *engine) revokeAccessToken(ctx context.Context, clientID string, token string) (bool, error) {
	claims, err := e.verifier.Verify(ctx, token)
	if err != nil {
		return false, nil
	}
	if claims.ClientID() != clientID {
		return true, nil
	}
	if err := e.AccessTokens.RevokeAccessToken(ctx, claims.ID); err != nil {
		return false, ServerError(err)
	}
	return true, nil
}

// revokeRefreshToken revokes only the refresh token; its access token lives until it expires
func (e *engine) revokeRefreshToken(ctx context.Context, clientID string, token string) (bool, error) {
	if e.RefreshTokens == nil {
		return false, nil
	}
	var payload refreshTokenPayload
	if err := e.Encrypter.Open(token, &payload); err != nil {
		return false, nil
	}
	if payload.ClientID != clientID {
		return true, nil
	}
	if err := e.RefreshTokens.RevokeRefreshToken(ctx, payload.RefreshTokenID); err != nil {
		return false, ServerError(err)
	}
	return true, nil
}

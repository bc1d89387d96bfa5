package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/storage"
)

// authenticateClient validates credentials carried by r for grant.
// Every failure is the same invalid_client error.
func (e *engine) authenticateClient(ctx context.Context, r *http.Request, grant GrantType) (*models.Client, error) {
	const op = "oauth.authenticateClient"
	log := e.log.With(slog.String("op", op))

	clientID, secret, basic := clientCredentials(r)
	if clientID == "" {
		return nil, InvalidRequest("client_id", "")
	}

	ok, err := e.Clients.ValidateClient(ctx, clientID, secret, string(grant))
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			log.Info("unknown client", slog.String("client_id", clientID))
			return nil, InvalidClient(basic)
		}
		return nil, ServerError(err)
	}
	if !ok {
		log.Info("client validation failed", slog.String("client_id", clientID))
		return nil, InvalidClient(basic)
	}

	return e.client(ctx, clientID, basic)
}

// client loads a client without authenticating it
func (e *engine) client(ctx context.Context, clientID string, basic bool) (*models.Client, error) {
	client, err := e.Clients.Client(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, InvalidClient(basic)
		}
		return nil, ServerError(err)
	}
	if client == nil {
		return nil, InvalidClient(basic)
	}
	return client, nil
}

package oauth

import (
	"context"
	"errors"
	"slices"
	"strings"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/storage"
)

const scopeDelimiter = " "

// splitScopes splits a scope parameter, trimming and dropping empty items
func splitScopes(raw string) []string {
	parts := strings.Split(raw, scopeDelimiter)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

func joinScopes(scopes []models.Scope) string {
	return strings.Join(models.ScopeIDs(scopes), scopeDelimiter)
}

// resolveScopes looks every identifier up in the scope repository
func (e *engine) resolveScopes(ctx context.Context, ids []string) ([]models.Scope, error) {
	scopes := make([]models.Scope, 0, len(ids))
	for _, id := range ids {
		scope, err := e.Scopes.ScopeByIdentifier(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrScopeNotFound) {
				return nil, InvalidScope(id)
			}
			return nil, ServerError(err)
		}
		if scope == nil {
			return nil, InvalidScope(id)
		}
		scopes = append(scopes, *scope)
	}
	return models.UniqueScopes(scopes), nil
}

// validateScopes resolves a raw scope parameter; an empty request uses the default scopes
func (e *engine) validateScopes(ctx context.Context, raw string) ([]models.Scope, error) {
	ids := splitScopes(raw)
	if len(ids) == 0 {
		ids = e.cfg.DefaultScopes
	}
	return e.resolveScopes(ctx, ids)
}

// finalizeScopes lets the repository reduce scopes for the grant and subject
func (e *engine) finalizeScopes(
	ctx context.Context,
	scopes []models.Scope,
	grant GrantType,
	client *models.Client,
	userID string,
) ([]models.Scope, error) {
	final, err := e.Scopes.FinalizeScopes(ctx, scopes, string(grant), client, userID)
	if err != nil {
		return nil, ServerError(err)
	}
	return models.UniqueScopes(final), nil
}

// narrowScopes checks requested is a subset of granted
func narrowScopes(requested []models.Scope, granted []string) ([]models.Scope, error) {
	for _, s := range requested {
		if !slices.Contains(granted, s.ID) {
			return nil, InvalidScope(s.ID)
		}
	}
	return requested, nil
}

// Package cached_postgres serves client and scope lookups from redis, falling back to postgres.
package cached_postgres

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/storage"
	"ssoengine/internal/storage/redis"
)

// Redis keys
// -- cl: Client
// -- sc: Scope
const (
	clientKey = "oauth:cl:"
	scopeKey  = "oauth:sc:"
)

// Directory is the subset of postgres.Storage that gets cached
type Directory interface {
	Client(ctx context.Context, clientID string) (*models.Client, error)
	ScopeByIdentifier(ctx context.Context, id string) (*models.Scope, error)
	FinalizeScopes(
		ctx context.Context,
		scopes []models.Scope,
		grant string,
		client *models.Client,
		userID string,
	) ([]models.Scope, error)
}

type CachedStorage struct {
	log   *slog.Logger
	s     Directory
	c     *redis.CacheWrapper
	group singleflight.Group
}

// NewCachedStorage creates an instance of combined storage with cache
func NewCachedStorage(log *slog.Logger, s Directory, c *redis.CacheWrapper) *CachedStorage {
	return &CachedStorage{log: log, s: s, c: c}
}

// cachedClient keeps the secret hash that models.Client hides from JSON
type cachedClient struct {
	models.Client
	SecretHash []byte `json:"secret_hash"`
}

// Client returns client from cache else from postgres, populating the cache
func (cs *CachedStorage) Client(ctx context.Context, clientID string) (*models.Client, error) {
	const op = "storage.cached_postgres.Client"

	key := clientKey + clientID
	var cached cachedClient
	if err := cs.c.Get(ctx, key, &cached); err == nil {
		client := cached.Client
		client.SecretHash = cached.SecretHash
		return &client, nil
	} else if !errors.Is(err, storage.ErrKeyNotFound) && !errors.Is(err, storage.InfoCacheDisabled) {
		cs.log.Warn("cache read failed", slog.String("op", op), slog.String("error", err.Error()))
	}

	// the shared lookup outlives a cancelled leader so waiting callers still get a result
	v, err, _ := cs.group.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		client, err := cs.s.Client(ctx, clientID)
		if err != nil {
			return nil, err
		}
		cs.set(ctx, op, key, cachedClient{Client: *client, SecretHash: client.SecretHash})
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	client := *v.(*models.Client)
	return &client, nil
}

// ValidateClient authenticates against the cached client record
func (cs *CachedStorage) ValidateClient(ctx context.Context, clientID string, secret string, grant string) (bool, error) {
	client, err := cs.Client(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			storage.CheckClient(nil, secret, grant)
		}
		return false, err
	}
	return storage.CheckClient(client, secret, grant), nil
}

func (cs *CachedStorage) ScopeByIdentifier(ctx context.Context, id string) (*models.Scope, error) {
	const op = "storage.cached_postgres.ScopeByIdentifier"

	key := scopeKey + id
	var scope models.Scope
	if err := cs.c.Get(ctx, key, &scope); err == nil {
		return &scope, nil
	}
	v, err, _ := cs.group.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		scope, err := cs.s.ScopeByIdentifier(ctx, id)
		if err != nil {
			return nil, err
		}
		cs.set(ctx, op, key, scope)
		return scope, nil
	})
	if err != nil {
		return nil, err
	}
	scope = *v.(*models.Scope)
	return &scope, nil
}

// FinalizeScopes depends on per-user rows and is never cached
func (cs *CachedStorage) FinalizeScopes(
	ctx context.Context,
	scopes []models.Scope,
	grant string,
	client *models.Client,
	userID string,
) ([]models.Scope, error) {
	return cs.s.FinalizeScopes(ctx, scopes, grant, client, userID)
}

// InvalidateClient drops a client from cache after it changed in postgres
func (cs *CachedStorage) InvalidateClient(ctx context.Context, clientID string) error {
	err := cs.c.Invalidate(ctx, clientKey+clientID)
	if errors.Is(err, storage.InfoCacheDisabled) {
		return nil
	}
	return err
}

func (cs *CachedStorage) set(ctx context.Context, op string, key string, value any) {
	if err := cs.c.Set(ctx, key, value); err != nil && !errors.Is(err, storage.InfoCacheDisabled) {
		cs.log.Warn("cache write failed", slog.String("op", op), slog.String("error", err.Error()))
	}
}

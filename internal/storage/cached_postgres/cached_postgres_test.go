package cached_postgres

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/storage"
	"ssoengine/internal/storage/redis"
)

type countingDirectory struct {
	clients atomic.Int32
	scopes  atomic.Int32
	hash    []byte
}

func (d *countingDirectory) Client(ctx context.Context, clientID string) (*models.Client, error) {
	d.clients.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if clientID != "c1" {
		return nil, storage.ErrClientNotFound
	}
	time.Sleep(10 * time.Millisecond)
	return &models.Client{ID: "c1", SecretHash: d.hash, Confidential: true, Grants: []string{"client_credentials"}}, nil
}

func (d *countingDirectory) ScopeByIdentifier(ctx context.Context, id string) (*models.Scope, error) {
	d.scopes.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id != "read" {
		return nil, storage.ErrScopeNotFound
	}
	return &models.Scope{ID: "read", Description: "read access"}, nil
}

func (d *countingDirectory) FinalizeScopes(
	_ context.Context,
	scopes []models.Scope,
	_ string,
	_ *models.Client,
	_ string,
) ([]models.Scope, error) {
	return scopes, nil
}

func newCached(t *testing.T) (*CachedStorage, *countingDirectory) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("s1"), bcrypt.MinCost)
	require.NoError(t, err)
	dir := &countingDirectory{hash: hash}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCachedStorage(log, dir, redis.NewCacheWrapper(rdb, time.Minute)), dir
}

func TestClient_CachedWithSecret(t *testing.T) {
	ctx := context.Background()
	cs, dir := newCached(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cs.Client(ctx, "c1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	calls := dir.clients.Load()
	assert.LessOrEqual(t, calls, int32(5))

	ok, err := cs.ValidateClient(ctx, "c1", "s1", "client_credentials")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, calls, dir.clients.Load(), "secret check must be served from cache")

	ok, err = cs.ValidateClient(ctx, "c1", "wrong", "client_credentials")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cs.InvalidateClient(ctx, "c1"))
	_, err = cs.Client(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, calls+1, dir.clients.Load())

	_, err = cs.Client(ctx, "ghost")
	assert.ErrorIs(t, err, storage.ErrClientNotFound)

	before := storage.DummyComparisons()
	ok, err = cs.ValidateClient(ctx, "ghost", "s1", "client_credentials")
	assert.ErrorIs(t, err, storage.ErrClientNotFound)
	assert.False(t, ok)
	assert.Equal(t, before+1, storage.DummyComparisons())
}

func TestScopeByIdentifier_Cached(t *testing.T) {
	ctx := context.Background()
	cs, dir := newCached(t)

	for i := 0; i < 3; i++ {
		scope, err := cs.ScopeByIdentifier(ctx, "read")
		require.NoError(t, err)
		assert.Equal(t, "read access", scope.Description)
	}
	assert.EqualValues(t, 1, dir.scopes.Load())

	_, err := cs.ScopeByIdentifier(ctx, "admin")
	assert.ErrorIs(t, err, storage.ErrScopeNotFound)
}

func TestLookup_CancelledCallerDoesNotFailShared(t *testing.T) {
	cs, dir := newCached(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client, err := cs.Client(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", client.ID)

	scope, err := cs.ScopeByIdentifier(ctx, "read")
	require.NoError(t, err)
	assert.Equal(t, "read", scope.ID)
	assert.EqualValues(t, 1, dir.scopes.Load())

	// the lookup made under the cancelled context still populated the cache
	_, err = cs.Client(context.Background(), "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, dir.clients.Load())
}

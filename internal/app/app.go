package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	httpapp "ssoengine/internal/app/http"
	"ssoengine/internal/config"
	"ssoengine/internal/domain/models"
	"ssoengine/internal/lib/jwt"
	"ssoengine/internal/lib/secretbox"
	"ssoengine/internal/lib/utilities"
	"ssoengine/internal/metrics"
	"ssoengine/internal/services/oauth"
	"ssoengine/internal/services/oauth/interfaces"
	"ssoengine/internal/storage"
	"ssoengine/internal/storage/cached_postgres"
	"ssoengine/internal/storage/memory"
	"ssoengine/internal/storage/postgres"
	"ssoengine/internal/storage/protected"
	"ssoengine/internal/storage/protected/vault"
	"ssoengine/internal/storage/redis"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"

	SigningLocal = "local"
	SigningVault = "vault"
)

type App struct {
	HTTPSrv *httpapp.App
	OAuth   *oauth.Server
	Handler http.Handler

	log     *slog.Logger
	cancel  context.CancelFunc
	closers []func()
}

// directory is what seeding needs from a client/scope/user store
type directory interface {
	interfaces.ClientRepository
	interfaces.ScopeRepository
	interfaces.UserRepository
	SaveClient(ctx context.Context, client models.Client, secret string) error
	SaveScope(ctx context.Context, scope models.Scope) error
	SaveUser(ctx context.Context, username string, password string) (string, error)
	RestrictUserScopes(ctx context.Context, userID string, scopes []string) error
}

// tokenStore backs every token and code repository
type tokenStore interface {
	interfaces.AccessTokenRepository
	interfaces.RefreshTokenRepository
	interfaces.AuthCodeRepository
	interfaces.DeviceCodeRepository
}

// New builds the application graph from cfg
func New(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	const op = "app.New"

	a := &App{log: log}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	var (
		mem *memory.Storage
		pg  *postgres.Storage
		rdb *goredis.Client
	)
	memoryStore := func() *memory.Storage {
		if mem == nil {
			mem = memory.New(cfg.Storage.CleanupInterval)
		}
		return mem
	}
	postgresStore := func() (*postgres.Storage, error) {
		if pg == nil {
			s, err := postgres.New(ctx, cfg.Postgres.ConnString)
			if err != nil {
				return nil, err
			}
			pg = s
			a.closers = append(a.closers, s.Close)
		}
		return pg, nil
	}
	redisClient := func() (*goredis.Client, error) {
		if rdb == nil {
			c, err := redis.NewClient(ctx, &cfg.Redis)
			if err != nil {
				return nil, err
			}
			rdb = c
			a.closers = append(a.closers, func() { _ = c.Close() })
		}
		return rdb, nil
	}

	// clients, scopes and users
	var (
		dir     directory
		clients interfaces.ClientRepository
		scopes  interfaces.ScopeRepository
	)
	switch cfg.Storage.Driver {
	case DriverMemory:
		dir = memoryStore()
	case DriverPostgres:
		s, err := postgresStore()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		dir = s
	default:
		return nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Storage.Driver)
	}
	clients, scopes = dir, dir
	var cached *cached_postgres.CachedStorage
	if cfg.Storage.UseCache && cfg.Storage.Driver == DriverPostgres {
		c, err := redisClient()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		cached = cached_postgres.NewCachedStorage(log, pg, redis.NewCacheWrapper(c, cfg.Redis.CacheTTL))
		clients, scopes = cached, cached
	}

	// tokens and codes
	var tokens tokenStore
	switch cfg.Storage.Tokens {
	case DriverMemory:
		tokens = memoryStore()
	case DriverPostgres:
		s, err := postgresStore()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tokens = s
	case DriverRedis:
		c, err := redisClient()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tokens = redis.NewTokenStore(c)
	default:
		return nil, fmt.Errorf("%s: unknown token storage %q", op, cfg.Storage.Tokens)
	}

	if err := seed(ctx, log, dir, cfg.Seed); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cached != nil {
		// seeding upserts clients, drop whatever an earlier run cached
		for _, c := range cfg.Seed.Clients {
			if err := cached.InvalidateClient(ctx, c.ID); err != nil {
				log.Warn("failed to invalidate cached client", slog.String("client_id", c.ID), slog.String("error", err.Error()))
			}
		}
	}

	signer, err := newSigner(ctx, log, cfg, rdb)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	box, err := secretbox.NewFromString(cfg.OAuth.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m := metrics.New()
	srv, err := oauth.NewServer(cfg.Engine(), oauth.Deps{
		Log:           log,
		Clients:       clients,
		Scopes:        scopes,
		AccessTokens:  tokens,
		RefreshTokens: tokens,
		AuthCodes:     tokens,
		DeviceCodes:   tokens,
		Users:         dir,
		Signer:        signer,
		Encrypter:     box,
		Observer:      m,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.OAuth = srv
	a.Handler = httpapp.NewRouter(log, srv, httpapp.RouterConfig{
		Env:        cfg.Env,
		UserHeader: cfg.HTTP.UserHeader,
		Metrics:    m,
	})
	a.HTTPSrv = httpapp.New(log, cfg.HTTP, a.Handler)

	if pg != nil && cfg.Storage.Tokens == DriverPostgres && cfg.Storage.CleanupInterval > 0 {
		cleanupCtx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		go purgeLoop(cleanupCtx, log, pg, cfg.Storage.CleanupInterval)
	}

	ok = true
	return a, nil
}

// Stop shuts the HTTP server down and releases storage connections
func (a *App) Stop(ctx context.Context) {
	if a.HTTPSrv != nil {
		a.HTTPSrv.Stop(ctx)
	}
	a.close()
}

func (a *App) close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newSigner(ctx context.Context, log *slog.Logger, cfg *config.Config, rdb *goredis.Client) (jwt.Signer, error) {
	switch cfg.Signing.Provider {
	case SigningLocal:
		if cfg.Signing.PrivateKeyPath == "" {
			log.Warn("no signing key configured, generating an ephemeral one")
			return jwt.GenerateRSASigner(2048)
		}
		return jwt.LoadRSASigner(cfg.Signing.PrivateKeyPath)
	case SigningVault:
		v, err := protected.NewVaultClient(cfg.Signing.Vault)
		if err != nil {
			return nil, err
		}
		if cfg.Signing.Vault.Token == "" {
			err = v.AuthUser(ctx, cfg.Signing.Vault.RoleIDPath, cfg.Signing.Vault.SecretIDPath)
			if err != nil {
				return nil, err
			}
		}
		cache := redis.NewCacheWrapper(rdb, cfg.Signing.Vault.KeysCacheTTL)
		return vault.NewTransitSigner(v, cache, cfg.Signing.Vault.KeyName), nil
	}
	return nil, fmt.Errorf("unknown signing provider %q", cfg.Signing.Provider)
}

// seed loads configured scopes, clients and users; existing users are left untouched
func seed(ctx context.Context, log *slog.Logger, dir directory, conf config.SeedConfig) error {
	const op = "app.seed"
	log = log.With(slog.String("op", op))

	for _, scope := range utilities.Map(conf.Scopes, func(s config.SeedScope) models.Scope {
		return models.Scope{ID: s.ID, Description: s.Description}
	}) {
		if err := dir.SaveScope(ctx, scope); err != nil {
			return err
		}
	}
	for _, c := range conf.Clients {
		client := models.Client{ID: c.ID, Name: c.Name, RedirectURIs: c.RedirectURIs, Grants: c.Grants}
		if err := dir.SaveClient(ctx, client, c.Secret); err != nil {
			return err
		}
	}
	for _, u := range conf.Users {
		id, err := dir.SaveUser(ctx, u.Username, u.Password)
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateIdentifier) {
				log.Info("user already exists", slog.String("username", u.Username))
				continue
			}
			return err
		}
		if len(u.Scopes) > 0 {
			if err := dir.RestrictUserScopes(ctx, id, u.Scopes); err != nil {
				return err
			}
		}
	}
	log.Info("storage seeded",
		slog.Int("scopes", len(conf.Scopes)),
		slog.Int("clients", len(conf.Clients)),
		slog.Int("users", len(conf.Users)),
	)
	return nil
}

func purgeLoop(ctx context.Context, log *slog.Logger, pg *postgres.Storage, interval time.Duration) {
	const op = "app.purgeLoop"
	log = log.With(slog.String("op", op))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := pg.PurgeExpired(ctx, now)
			if err != nil {
				log.Error("failed to purge expired records", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				log.Debug("expired records purged", slog.Int64("count", n))
			}
		}
	}
}

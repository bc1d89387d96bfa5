// Package memory keeps every repository in process memory.
// Token and code records expire through go-cache; clients, scopes and users are static.
package memory

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"ssoengine/internal/domain/models"
)

const (
	accessTokenPrefix  = "at:"
	refreshTokenPrefix = "rt:"
	authCodePrefix     = "ac:"
	deviceCodePrefix   = "dc:"
	userCodePrefix     = "uc:"
)

// retention keeps records around after expiry so revocation and consumption flags stay visible
const retention = time.Hour

// Storage instance holding all repositories in memory
type Storage struct {
	mu      sync.Mutex
	records *cache.Cache

	dirMu      sync.RWMutex
	clients    map[string]models.Client
	scopes     map[string]models.Scope
	users      map[string]models.User
	userScopes map[string][]string
}

// New creates an empty storage; cleanupInterval drives go-cache's janitor
func New(cleanupInterval time.Duration) *Storage {
	return &Storage{
		records:    cache.New(cache.NoExpiration, cleanupInterval),
		clients:    make(map[string]models.Client),
		scopes:     make(map[string]models.Scope),
		users:      make(map[string]models.User),
		userScopes: make(map[string][]string),
	}
}

// ttl returns how long a record expiring at expiresAt is kept
func ttl(expiresAt time.Time) time.Duration {
	d := time.Until(expiresAt)
	if d < 0 {
		d = 0
	}
	return d + retention
}

// consumable wraps a single-use record
type consumable[T any] struct {
	Record   T
	Consumed bool
}

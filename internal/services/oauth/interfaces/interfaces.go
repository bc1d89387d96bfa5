package interfaces

import (
	"context"
	"time"

	"ssoengine/internal/domain/models"
)

// ClientRepository resolves and authenticates clients
type ClientRepository interface {
	Client(ctx context.Context, clientID string) (*models.Client, error)
	// ValidateClient enforces secret requirements of confidential clients and the grant allow-list
	ValidateClient(ctx context.Context, clientID string, secret string, grant string) (bool, error)
}

// ScopeRepository resolves scope identifiers and applies the final per-grant reduction
type ScopeRepository interface {
	ScopeByIdentifier(ctx context.Context, id string) (*models.Scope, error)
	FinalizeScopes(
		ctx context.Context,
		scopes []models.Scope,
		grant string,
		client *models.Client,
		userID string,
	) ([]models.Scope, error)
}

// AccessTokenRepository keeps records and the revocation list of signed access tokens
type AccessTokenRepository interface {
	// SaveAccessToken returns storage.ErrDuplicateIdentifier when the id is taken
	SaveAccessToken(ctx context.Context, token *models.AccessToken) error
	// RevokeAccessToken is idempotent and succeeds for unknown ids
	RevokeAccessToken(ctx context.Context, tokenID string) error
	IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RefreshTokenRepository keeps refresh token records
type RefreshTokenRepository interface {
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	RevokeRefreshToken(ctx context.Context, tokenID string) error
	IsRefreshTokenRevoked(ctx context.Context, tokenID string) (bool, error)
	// ConsumeRefreshToken atomically marks a live token used.
	// Concurrent callers see exactly one success, the rest get storage.ErrTokenConsumed.
	ConsumeRefreshToken(ctx context.Context, tokenID string) error
}

// AuthCodeRepository keeps authorization code records
type AuthCodeRepository interface {
	SaveAuthCode(ctx context.Context, code *models.AuthorizationCode) error
	RevokeAuthCode(ctx context.Context, codeID string) error
	IsAuthCodeRevoked(ctx context.Context, codeID string) (bool, error)
	// ConsumeAuthCode atomically marks the code used, storage.ErrTokenConsumed if it already was
	ConsumeAuthCode(ctx context.Context, codeID string) error
}

// DeviceCodeRepository keeps device authorization records
type DeviceCodeRepository interface {
	SaveDeviceCode(ctx context.Context, code *models.DeviceCode) error
	DeviceCode(ctx context.Context, codeID string) (*models.DeviceCode, error)
	DeviceCodeByUserCode(ctx context.Context, userCode string) (*models.DeviceCode, error)
	// TouchDeviceCode stores polledAt and returns the previous poll time (zero if never polled)
	TouchDeviceCode(ctx context.Context, codeID string, polledAt time.Time) (time.Time, error)
	ResolveDeviceCode(ctx context.Context, codeID string, userID string, approved bool) error
	ConsumeDeviceCode(ctx context.Context, codeID string) error
	RevokeDeviceCode(ctx context.Context, codeID string) error
}

// UserRepository validates resource owner credentials for the password grant
type UserRepository interface {
	UserByCredentials(
		ctx context.Context,
		username string,
		password string,
		grant string,
		client *models.Client,
	) (*models.User, error)
}

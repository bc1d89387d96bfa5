package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/storage"
)

const (
	accessTokenPrefix  = "oauth:at:"
	refreshTokenPrefix = "oauth:rt:"
	authCodePrefix     = "oauth:ac:"
	deviceCodePrefix   = "oauth:dc:"
	userCodePrefix     = "oauth:uc:"
	stateSuffix        = ":state"
)

// Retention keeps records after expiry so revocation and consumption stay visible
const Retention = time.Hour

// TokenStore keeps tokens and codes in redis. Records are JSON strings written with SET NX;
// revocation and consumption live in a companion state key.
type TokenStore struct {
	rdb *redis.Client
}

func NewTokenStore(rdb *redis.Client) *TokenStore {
	return &TokenStore{rdb: rdb}
}

func ttl(expiresAt time.Time) time.Duration {
	d := time.Until(expiresAt)
	if d < 0 {
		d = 0
	}
	return d + Retention
}

func (s *TokenStore) add(ctx context.Context, key string, value any, expiresAt time.Time) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, key, data, ttl(expiresAt)).Result()
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrDuplicateIdentifier
	}
	return nil
}

func (s *TokenStore) consume(ctx context.Context, key string) error {
	res, err := consumeScript.Run(ctx, s.rdb, []string{key, key + stateSuffix}, Retention.Milliseconds()).Int()
	if err != nil {
		return err
	}
	switch res {
	case -1:
		return storage.ErrTokenNotFound
	case 0:
		return storage.ErrTokenConsumed
	}
	return nil
}

func (s *TokenStore) revoke(ctx context.Context, key string) error {
	return revokeScript.Run(ctx, s.rdb, []string{key, key + stateSuffix}).Err()
}

// used reports whether a single-use record is gone, revoked or consumed
func (s *TokenStore) used(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return true, nil
	}
	n, err = s.rdb.Exists(ctx, key+stateSuffix).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *TokenStore) SaveAccessToken(ctx context.Context, token *models.AccessToken) error {
	const op = "storage.redis.SaveAccessToken"
	if err := s.add(ctx, accessTokenPrefix+token.ID, token, token.ExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RevokeAccessToken records the revocation even for ids it has never seen
func (s *TokenStore) RevokeAccessToken(ctx context.Context, tokenID string) error {
	const op = "storage.redis.RevokeAccessToken"
	key := accessTokenPrefix + tokenID
	d, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if d <= 0 {
		d = Retention
	}
	if err := s.rdb.Set(ctx, key+stateSuffix, "revoked", d).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *TokenStore) IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	const op = "storage.redis.IsAccessTokenRevoked"
	n, err := s.rdb.Exists(ctx, accessTokenPrefix+tokenID+stateSuffix).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// AccessToken returns the stored record
func (s *TokenStore) AccessToken(ctx context.Context, tokenID string) (*models.AccessToken, error) {
	const op = "storage.redis.AccessToken"
	var token models.AccessToken
	if err := s.get(ctx, accessTokenPrefix+tokenID, &token); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	revoked, err := s.IsAccessTokenRevoked(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	token.Revoked = revoked
	return &token, nil
}

func (s *TokenStore) get(ctx context.Context, key string, dst any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func (s *TokenStore) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.redis.SaveRefreshToken"
	if err := s.add(ctx, refreshTokenPrefix+token.ID, token, token.ExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *TokenStore) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	const op = "storage.redis.RevokeRefreshToken"
	if err := s.revoke(ctx, refreshTokenPrefix+tokenID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *TokenStore) IsRefreshTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	const op = "storage.redis.IsRefreshTokenRevoked"
	used, err := s.used(ctx, refreshTokenPrefix+tokenID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return used, nil
}

func (s *TokenStore) ConsumeRefreshToken(ctx context.Context, tokenID string) error {
	const op = "storage.redis.ConsumeRefreshToken"
	if err := s.consume(ctx, refreshTokenPrefix+tokenID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *TokenStore) SaveAuthCode(ctx context.Context, code *models.AuthorizationCode) error {
	const op = "storage.redis.SaveAuthCode"
	if err := s.add(ctx, authCodePrefix+code.ID, code, code.ExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *TokenStore) RevokeAuthCode(ctx context.Context, codeID string) error {
	const op = "storage.redis.RevokeAuthCode"
	if err := s.revoke(ctx, authCodePrefix+codeID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *TokenStore) IsAuthCodeRevoked(ctx context.Context, codeID string) (bool, error) {
	const op = "storage.redis.IsAuthCodeRevoked"
	used, err := s.used(ctx, authCodePrefix+codeID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return used, nil
}

func (s *TokenStore) ConsumeAuthCode(ctx context.Context, codeID string) error {
	const op = "storage.redis.ConsumeAuthCode"
	if err := s.consume(ctx, authCodePrefix+codeID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

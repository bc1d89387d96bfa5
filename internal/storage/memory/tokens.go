package memory

import (
	"context"
	"time"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/storage"
)

// SaveAccessToken stores the record, failing on a taken id
func (s *Storage) SaveAccessToken(_ context.Context, token *models.AccessToken) error {
	if err := s.records.Add(accessTokenPrefix+token.ID, *token, ttl(token.ExpiresAt)); err != nil {
		return storage.ErrDuplicateIdentifier
	}
	return nil
}

// RevokeAccessToken flags the token; unknown ids are remembered as revoked too
func (s *Storage) RevokeAccessToken(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accessTokenPrefix + tokenID
	item, exp, ok := s.records.GetWithExpiration(key)
	if !ok {
		s.records.Set(key, models.AccessToken{ID: tokenID, Revoked: true}, retention)
		return nil
	}
	token := item.(models.AccessToken)
	token.Revoked = true
	s.records.Set(key, token, keep(exp))
	return nil
}

func (s *Storage) IsAccessTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	item, ok := s.records.Get(accessTokenPrefix + tokenID)
	if !ok {
		return false, nil
	}
	return item.(models.AccessToken).Revoked, nil
}

// AccessToken returns the stored record
func (s *Storage) AccessToken(_ context.Context, tokenID string) (*models.AccessToken, error) {
	item, ok := s.records.Get(accessTokenPrefix + tokenID)
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	token := item.(models.AccessToken)
	return &token, nil
}

func (s *Storage) SaveRefreshToken(_ context.Context, token *models.RefreshToken) error {
	rec := consumable[models.RefreshToken]{Record: *token}
	if err := s.records.Add(refreshTokenPrefix+token.ID, rec, ttl(token.ExpiresAt)); err != nil {
		return storage.ErrDuplicateIdentifier
	}
	return nil
}

// RevokeRefreshToken is idempotent and ignores unknown ids
func (s *Storage) RevokeRefreshToken(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := refreshTokenPrefix + tokenID
	item, exp, ok := s.records.GetWithExpiration(key)
	if !ok {
		return nil
	}
	rec := item.(consumable[models.RefreshToken])
	rec.Record.Revoked = true
	s.records.Set(key, rec, keep(exp))
	return nil
}

// IsRefreshTokenRevoked treats unknown ids as revoked
func (s *Storage) IsRefreshTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	item, ok := s.records.Get(refreshTokenPrefix + tokenID)
	if !ok {
		return true, nil
	}
	rec := item.(consumable[models.RefreshToken])
	return rec.Record.Revoked || rec.Consumed, nil
}

func (s *Storage) ConsumeRefreshToken(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := refreshTokenPrefix + tokenID
	item, exp, ok := s.records.GetWithExpiration(key)
	if !ok {
		return storage.ErrTokenNotFound
	}
	rec := item.(consumable[models.RefreshToken])
	if rec.Consumed || rec.Record.Revoked {
		return storage.ErrTokenConsumed
	}
	rec.Consumed = true
	s.records.Set(key, rec, keep(exp))
	return nil
}

// keep converts an absolute go-cache expiration back into a duration for Set
func keep(exp time.Time) time.Duration {
	if exp.IsZero() {
		return retention
	}
	if d := time.Until(exp); d > 0 {
		return d
	}
	return time.Second
}

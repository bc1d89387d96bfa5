package memory

import (
	"context"
	"time"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/storage"
)

func (s *Storage) SaveAuthCode(_ context.Context, code *models.AuthorizationCode) error {
	rec := consumable[models.AuthorizationCode]{Record: *code}
	if err := s.records.Add(authCodePrefix+code.ID, rec, ttl(code.ExpiresAt)); err != nil {
		return storage.ErrDuplicateIdentifier
	}
	return nil
}

func (s *Storage) RevokeAuthCode(_ context.Context, codeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := authCodePrefix + codeID
	item, exp, ok := s.records.GetWithExpiration(key)
	if !ok {
		return nil
	}
	rec := item.(consumable[models.AuthorizationCode])
	rec.Record.Revoked = true
	s.records.Set(key, rec, keep(exp))
	return nil
}

func (s *Storage) IsAuthCodeRevoked(_ context.Context, codeID string) (bool, error) {
	item, ok := s.records.Get(authCodePrefix + codeID)
	if !ok {
		return true, nil
	}
	rec := item.(consumable[models.AuthorizationCode])
	return rec.Record.Revoked || rec.Consumed, nil
}

func (s *Storage) ConsumeAuthCode(_ context.Context, codeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := authCodePrefix + codeID
	item, exp, ok := s.records.GetWithExpiration(key)
	if !ok {
		return storage.ErrTokenNotFound
	}
	rec := item.(consumable[models.AuthorizationCode])
	if rec.Consumed || rec.Record.Revoked {
		return storage.ErrTokenConsumed
	}
	rec.Consumed = true
	s.records.Set(key, rec, keep(exp))
	return nil
}

// SaveDeviceCode stores the code and indexes it by user code; either collision fails
func (s *Storage) SaveDeviceCode(_ context.Context, code *models.DeviceCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := ttl(code.ExpiresAt)
	if err := s.records.Add(userCodePrefix+code.UserCode, code.ID, d); err != nil {
		return storage.ErrDuplicateIdentifier
	}
	rec := consumable[models.DeviceCode]{Record: *code}
	if err := s.records.Add(deviceCodePrefix+code.ID, rec, d); err != nil {
		s.records.Delete(userCodePrefix + code.UserCode)
		return storage.ErrDuplicateIdentifier
	}
	return nil
}

func (s *Storage) DeviceCode(_ context.Context, codeID string) (*models.DeviceCode, error) {
	item, ok := s.records.Get(deviceCodePrefix + codeID)
	if !ok {
		return nil, storage.ErrDeviceCodeNotFound
	}
	rec := item.(consumable[models.DeviceCode])
	code := rec.Record
	code.Revoked = code.Revoked || rec.Consumed
	return &code, nil
}

func (s *Storage) DeviceCodeByUserCode(ctx context.Context, userCode string) (*models.DeviceCode, error) {
	id, ok := s.records.Get(userCodePrefix + userCode)
	if !ok {
		return nil, storage.ErrDeviceCodeNotFound
	}
	return s.DeviceCode(ctx, id.(string))
}

func (s *Storage) TouchDeviceCode(_ context.Context, codeID string, polledAt time.Time) (time.Time, error) {
	var previous time.Time
	err := s.updateDeviceCode(codeID, func(rec *consumable[models.DeviceCode]) error {
		previous = rec.Record.LastPolledAt
		rec.Record.LastPolledAt = polledAt
		return nil
	})
	return previous, err
}

// ResolveDeviceCode moves a pending code to approved or denied
func (s *Storage) ResolveDeviceCode(_ context.Context, codeID string, userID string, approved bool) error {
	return s.updateDeviceCode(codeID, func(rec *consumable[models.DeviceCode]) error {
		if rec.Record.Status != models.DeviceCodePending || rec.Consumed || rec.Record.Revoked {
			return storage.ErrTokenConsumed
		}
		rec.Record.UserID = userID
		rec.Record.Status = models.DeviceCodeDenied
		if approved {
			rec.Record.Status = models.DeviceCodeApproved
		}
		return nil
	})
}

// ConsumeDeviceCode succeeds once for an approved code
func (s *Storage) ConsumeDeviceCode(_ context.Context, codeID string) error {
	return s.updateDeviceCode(codeID, func(rec *consumable[models.DeviceCode]) error {
		if rec.Consumed || rec.Record.Revoked || rec.Record.Status != models.DeviceCodeApproved {
			return storage.ErrTokenConsumed
		}
		rec.Consumed = true
		return nil
	})
}

func (s *Storage) RevokeDeviceCode(_ context.Context, codeID string) error {
	err := s.updateDeviceCode(codeID, func(rec *consumable[models.DeviceCode]) error {
		rec.Record.Revoked = true
		return nil
	})
	if err == storage.ErrDeviceCodeNotFound {
		return nil
	}
	return err
}

func (s *Storage) updateDeviceCode(codeID string, fn func(rec *consumable[models.DeviceCode]) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deviceCodePrefix + codeID
	item, exp, ok := s.records.GetWithExpiration(key)
	if !ok {
		return storage.ErrDeviceCodeNotFound
	}
	rec := item.(consumable[models.DeviceCode])
	if err := fn(&rec); err != nil {
		return err
	}
	s.records.Set(key, rec, keep(exp))
	return nil
}

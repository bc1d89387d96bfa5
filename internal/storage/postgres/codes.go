package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/storage"
)

func (s *Storage) SaveAuthCode(ctx context.Context, code *models.AuthorizationCode) error {
	return s.insertUnique(ctx, "storage.postgres.SaveAuthCode", `
		INSERT INTO auth_codes (id, client_id, user_id, redirect_uri, scopes, expires_at,
			code_challenge, code_challenge_method, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		code.ID, code.ClientID, code.UserID, code.RedirectURI, models.ScopeIDs(code.Scopes),
		code.ExpiresAt, code.CodeChallenge, code.CodeChallengeMethod, code.Revoked,
	)
}

func (s *Storage) RevokeAuthCode(ctx context.Context, codeID string) error {
	return s.flag(ctx, "storage.postgres.RevokeAuthCode",
		`UPDATE auth_codes SET revoked = TRUE WHERE id = $1`, codeID)
}

func (s *Storage) IsAuthCodeRevoked(ctx context.Context, codeID string) (bool, error) {
	return s.used(ctx, "storage.postgres.IsAuthCodeRevoked",
		`SELECT revoked OR consumed FROM auth_codes WHERE id = $1`, codeID)
}

func (s *Storage) ConsumeAuthCode(ctx context.Context, codeID string) error {
	return s.consume(ctx, "storage.postgres.ConsumeAuthCode", "auth_codes", codeID)
}

// SaveDeviceCode stores the code; a taken id or user code fails with storage.ErrDuplicateIdentifier
func (s *Storage) SaveDeviceCode(ctx context.Context, code *models.DeviceCode) error {
	return s.insertUnique(ctx, "storage.postgres.SaveDeviceCode", `
		INSERT INTO device_codes (id, user_code, verification_uri, client_id, user_id, scopes,
			status, interval_ms, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		code.ID, code.UserCode, code.VerificationURI, code.ClientID, code.UserID,
		models.ScopeIDs(code.Scopes), string(code.Status), code.Interval.Milliseconds(),
		code.ExpiresAt, code.Revoked,
	)
}

const deviceCodeColumns = `id, user_code, verification_uri, client_id, user_id, scopes,
	status, interval_ms, expires_at, last_polled_at, revoked OR consumed`

func (s *Storage) DeviceCode(ctx context.Context, codeID string) (*models.DeviceCode, error) {
	return s.deviceCode(ctx, "storage.postgres.DeviceCode",
		`SELECT `+deviceCodeColumns+` FROM device_codes WHERE id = $1`, codeID)
}

func (s *Storage) DeviceCodeByUserCode(ctx context.Context, userCode string) (*models.DeviceCode, error) {
	return s.deviceCode(ctx, "storage.postgres.DeviceCodeByUserCode",
		`SELECT `+deviceCodeColumns+` FROM device_codes WHERE user_code = $1`, userCode)
}

func (s *Storage) deviceCode(ctx context.Context, op string, sql string, arg string) (*models.DeviceCode, error) {
	var (
		code       models.DeviceCode
		scopes     []string
		status     string
		intervalMS int64
		polledAt   *time.Time
	)
	err := s.db.QueryRow(ctx, sql, arg).Scan(
		&code.ID, &code.UserCode, &code.VerificationURI, &code.ClientID, &code.UserID, &scopes,
		&status, &intervalMS, &code.ExpiresAt, &polledAt, &code.Revoked,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrDeviceCodeNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	code.Scopes = models.ScopesFromIDs(scopes)
	code.Status = models.DeviceCodeStatus(status)
	code.Interval = time.Duration(intervalMS) * time.Millisecond
	if polledAt != nil {
		code.LastPolledAt = *polledAt
	}
	return &code, nil
}

// TouchDeviceCode stores polledAt and returns the previous value under a row lock
func (s *Storage) TouchDeviceCode(ctx context.Context, codeID string, polledAt time.Time) (time.Time, error) {
	const op = "storage.postgres.TouchDeviceCode"

	var previous *time.Time
	err := s.db.QueryRow(ctx, `
		UPDATE device_codes d SET last_polled_at = $2
		FROM (SELECT id, last_polled_at FROM device_codes WHERE id = $1 FOR UPDATE) old
		WHERE d.id = old.id
		RETURNING old.last_polled_at`,
		codeID, polledAt,
	).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, storage.ErrDeviceCodeNotFound
		}
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	if previous == nil {
		return time.Time{}, nil
	}
	return *previous, nil
}

// ResolveDeviceCode moves a pending code to approved or denied
func (s *Storage) ResolveDeviceCode(ctx context.Context, codeID string, userID string, approved bool) error {
	status := models.DeviceCodeDenied
	if approved {
		status = models.DeviceCodeApproved
	}
	return s.transition(ctx, "storage.postgres.ResolveDeviceCode", codeID, `
		UPDATE device_codes SET status = $2, user_id = $3
		WHERE id = $1 AND status = 'pending' AND NOT revoked AND NOT consumed`,
		string(status), userID,
	)
}

// ConsumeDeviceCode succeeds once for an approved code
func (s *Storage) ConsumeDeviceCode(ctx context.Context, codeID string) error {
	return s.transition(ctx, "storage.postgres.ConsumeDeviceCode", codeID, `
		UPDATE device_codes SET consumed = TRUE
		WHERE id = $1 AND status = 'approved' AND NOT revoked AND NOT consumed`,
	)
}

func (s *Storage) RevokeDeviceCode(ctx context.Context, codeID string) error {
	return s.flag(ctx, "storage.postgres.RevokeDeviceCode",
		`UPDATE device_codes SET revoked = TRUE WHERE id = $1`, codeID)
}

func (s *Storage) transition(ctx context.Context, op string, codeID string, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, append([]any{codeID}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM device_codes WHERE id = $1)`, codeID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return storage.ErrDeviceCodeNotFound
	}
	return storage.ErrTokenConsumed
}

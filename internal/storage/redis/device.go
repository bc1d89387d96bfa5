package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/storage"
)

// Device codes are hashes: the immutable part sits in "record" as JSON,
// mutable fields are kept beside it so Lua scripts can update them in place.
const (
	fieldRecord   = "record"
	fieldStatus   = "status"
	fieldUserID   = "user_id"
	fieldRevoked  = "revoked"
	fieldConsumed = "consumed"
	fieldPolledAt = "last_polled_at"
)

// SaveDeviceCode stores the code and indexes it by user code; either collision fails
func (s *TokenStore) SaveDeviceCode(ctx context.Context, code *models.DeviceCode) error {
	const op = "storage.redis.SaveDeviceCode"

	record, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	keys := []string{deviceCodePrefix + code.ID, userCodePrefix + code.UserCode}
	args := []any{
		ttl(code.ExpiresAt).Milliseconds(), code.ID,
		fieldRecord, string(record),
		fieldStatus, string(code.Status),
		fieldUserID, code.UserID,
		fieldRevoked, boolField(code.Revoked),
		fieldConsumed, "0",
	}
	ok, err := saveDeviceScript.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ok == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrDuplicateIdentifier)
	}
	return nil
}

func (s *TokenStore) DeviceCode(ctx context.Context, codeID string) (*models.DeviceCode, error) {
	const op = "storage.redis.DeviceCode"

	fields, err := s.rdb.HGetAll(ctx, deviceCodePrefix+codeID).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrDeviceCodeNotFound
	}
	var code models.DeviceCode
	if err := json.Unmarshal([]byte(fields[fieldRecord]), &code); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	code.Status = models.DeviceCodeStatus(fields[fieldStatus])
	code.UserID = fields[fieldUserID]
	code.Revoked = fields[fieldRevoked] == "1" || fields[fieldConsumed] == "1"
	code.LastPolledAt = time.Time{}
	if polled := fields[fieldPolledAt]; polled != "" {
		code.LastPolledAt, err = parseNano(polled)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return &code, nil
}

func (s *TokenStore) DeviceCodeByUserCode(ctx context.Context, userCode string) (*models.DeviceCode, error) {
	const op = "storage.redis.DeviceCodeByUserCode"

	id, err := s.rdb.Get(ctx, userCodePrefix+userCode).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrDeviceCodeNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.DeviceCode(ctx, id)
}

func (s *TokenStore) TouchDeviceCode(ctx context.Context, codeID string, polledAt time.Time) (time.Time, error) {
	const op = "storage.redis.TouchDeviceCode"

	res, err := touchDeviceScript.Run(ctx, s.rdb, []string{deviceCodePrefix + codeID},
		strconv.FormatInt(polledAt.UnixNano(), 10)).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	switch v := res.(type) {
	case int64:
		return time.Time{}, storage.ErrDeviceCodeNotFound
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		return parseNano(v)
	}
	return time.Time{}, fmt.Errorf("%s: unexpected reply %T", op, res)
}

// ResolveDeviceCode moves a pending code to approved or denied
func (s *TokenStore) ResolveDeviceCode(ctx context.Context, codeID string, userID string, approved bool) error {
	status := models.DeviceCodeDenied
	if approved {
		status = models.DeviceCodeApproved
	}
	return s.transition(ctx, "storage.redis.ResolveDeviceCode", codeID,
		models.DeviceCodePending, status, userID, false)
}

// ConsumeDeviceCode succeeds once for an approved code
func (s *TokenStore) ConsumeDeviceCode(ctx context.Context, codeID string) error {
	return s.transition(ctx, "storage.redis.ConsumeDeviceCode", codeID,
		models.DeviceCodeApproved, models.DeviceCodeApproved, "", true)
}

func (s *TokenStore) RevokeDeviceCode(ctx context.Context, codeID string) error {
	const op = "storage.redis.RevokeDeviceCode"

	if err := revokeDeviceScript.Run(ctx, s.rdb, []string{deviceCodePrefix + codeID}).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *TokenStore) transition(
	ctx context.Context,
	op string,
	codeID string,
	from, to models.DeviceCodeStatus,
	userID string,
	consume bool,
) error {
	res, err := transitionDeviceScript.Run(ctx, s.rdb, []string{deviceCodePrefix + codeID},
		string(from), string(to), userID, boolField(consume)).Int()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch res {
	case -1:
		return storage.ErrDeviceCodeNotFound
	case 0:
		return storage.ErrTokenConsumed
	}
	return nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseNano(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}

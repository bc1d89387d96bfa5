package storage

import "errors"

var (
	ErrClientNotFound      = errors.New("client not found")
	ErrScopeNotFound       = errors.New("scope not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrTokenNotFound       = errors.New("token not found")
	ErrTokenConsumed       = errors.New("token already consumed")
	ErrDeviceCodeNotFound  = errors.New("device code not found")
	ErrDuplicateIdentifier = errors.New("identifier already exists")
	ErrKeyNotFound         = errors.New("cache key not found")
	InfoCacheDisabled      = errors.New("info cache is disabled")
)

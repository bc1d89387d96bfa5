package utilities

import (
	"context"
	"errors"
)

// ErrUserUnauthenticated means no authenticating proxy vouched for a user
var ErrUserUnauthenticated = errors.New("user unauthenticated")

// WithUser stores the authenticated user id in ctx
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// GetUser returns the user id the host authenticated for this request
func GetUser(ctx context.Context) (string, error) {
	if userID, ok := ctx.Value(userKey).(string); ok && userID != "" {
		return userID, nil
	}
	return "", ErrUserUnauthenticated
}

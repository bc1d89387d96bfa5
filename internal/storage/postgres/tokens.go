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

func (s *Storage) SaveAccessToken(ctx context.Context, token *models.AccessToken) error {
	return s.insertUnique(ctx, "storage.postgres.SaveAccessToken", `
		INSERT INTO access_tokens (id, client_id, user_id, scopes, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.ClientID, token.UserID, models.ScopeIDs(token.Scopes), token.ExpiresAt, token.Revoked,
	)
}

// RevokeAccessToken flags the token; unknown ids get a revoked placeholder row
func (s *Storage) RevokeAccessToken(ctx context.Context, tokenID string) error {
	const op = "storage.postgres.RevokeAccessToken"

	_, err := s.db.Exec(ctx, `
		INSERT INTO access_tokens (id, expires_at, revoked) VALUES ($1, $2, TRUE)
		ON CONFLICT (id) DO UPDATE SET revoked = TRUE`,
		tokenID, time.Now().Add(Retention),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	const op = "storage.postgres.IsAccessTokenRevoked"

	var revoked bool
	err := s.db.QueryRow(ctx, `SELECT revoked FROM access_tokens WHERE id = $1`, tokenID).Scan(&revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return revoked, nil
}

// AccessToken returns the stored record
func (s *Storage) AccessToken(ctx context.Context, tokenID string) (*models.AccessToken, error) {
	const op = "storage.postgres.AccessToken"

	var (
		token  models.AccessToken
		scopes []string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, client_id, user_id, scopes, expires_at, revoked FROM access_tokens WHERE id = $1`,
		tokenID,
	).Scan(&token.ID, &token.ClientID, &token.UserID, &scopes, &token.ExpiresAt, &token.Revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token.Scopes = models.ScopesFromIDs(scopes)
	return &token, nil
}

func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	return s.insertUnique(ctx, "storage.postgres.SaveRefreshToken", `
		INSERT INTO refresh_tokens (id, access_token_id, client_id, user_id, scopes, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID, token.AccessTokenID, token.ClientID, token.UserID,
		models.ScopeIDs(token.Scopes), token.ExpiresAt, token.Revoked,
	)
}

func (s *Storage) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	return s.flag(ctx, "storage.postgres.RevokeRefreshToken",
		`UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1`, tokenID)
}

// IsRefreshTokenRevoked treats unknown ids as revoked
func (s *Storage) IsRefreshTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	return s.used(ctx, "storage.postgres.IsRefreshTokenRevoked",
		`SELECT revoked OR consumed FROM refresh_tokens WHERE id = $1`, tokenID)
}

func (s *Storage) ConsumeRefreshToken(ctx context.Context, tokenID string) error {
	return s.consume(ctx, "storage.postgres.ConsumeRefreshToken", "refresh_tokens", tokenID)
}

func (s *Storage) flag(ctx context.Context, op string, sql string, id string) error {
	if _, err := s.db.Exec(ctx, sql, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) used(ctx context.Context, op string, sql string, id string) (bool, error) {
	var used bool
	if err := s.db.QueryRow(ctx, sql, id).Scan(&used); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return used, nil
}

// consume flips the consumed flag of a live row; the conditional update makes one caller win
func (s *Storage) consume(ctx context.Context, op string, table string, id string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE "+table+" SET consumed = TRUE WHERE id = $1 AND NOT consumed AND NOT revoked", id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return storage.ErrTokenNotFound
	}
	return storage.ErrTokenConsumed
}

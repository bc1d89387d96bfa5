package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/storage"
)

// SaveClient upserts a client; a non-empty secret makes it confidential
func (s *Storage) SaveClient(ctx context.Context, client models.Client, secret string) error {
	const op = "storage.postgres.SaveClient"

	if secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		client.SecretHash = hash
		client.Confidential = true
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO clients (id, name, secret_hash, confidential, redirect_uris, grants)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			secret_hash = EXCLUDED.secret_hash,
			confidential = EXCLUDED.confidential,
			redirect_uris = EXCLUDED.redirect_uris,
			grants = EXCLUDED.grants`,
		client.ID, client.Name, client.SecretHash, client.Confidential,
		nonNil(client.RedirectURIs), nonNil(client.Grants),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Client gets client by its identifier
func (s *Storage) Client(ctx context.Context, clientID string) (*models.Client, error) {
	const op = "storage.postgres.Client"

	var client models.Client
	err := s.db.QueryRow(ctx,
		`SELECT id, name, secret_hash, confidential, redirect_uris, grants FROM clients WHERE id = $1`,
		clientID,
	).Scan(&client.ID, &client.Name, &client.SecretHash, &client.Confidential, &client.RedirectURIs, &client.Grants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrClientNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &client, nil
}

// ValidateClient checks the secret of confidential clients and the grant allow-list.
// Unknown clients cost one bcrypt comparison, like a wrong secret.
func (s *Storage) ValidateClient(ctx context.Context, clientID string, secret string, grant string) (bool, error) {
	client, err := s.Client(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			storage.CheckClient(nil, secret, grant)
		}
		return false, err
	}
	return storage.CheckClient(client, secret, grant), nil
}

func (s *Storage) SaveScope(ctx context.Context, scope models.Scope) error {
	const op = "storage.postgres.SaveScope"

	_, err := s.db.Exec(ctx,
		`INSERT INTO scopes (id, description) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET description = EXCLUDED.description`,
		scope.ID, scope.Description,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) ScopeByIdentifier(ctx context.Context, id string) (*models.Scope, error) {
	const op = "storage.postgres.ScopeByIdentifier"

	var scope models.Scope
	err := s.db.QueryRow(ctx, `SELECT id, description FROM scopes WHERE id = $1`, id).
		Scan(&scope.ID, &scope.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrScopeNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &scope, nil
}

// RestrictUserScopes replaces the set of scopes userID may hold
func (s *Storage) RestrictUserScopes(ctx context.Context, userID string, scopes []string) error {
	const op = "storage.postgres.RestrictUserScopes"

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_scopes WHERE user_id = $1`, userID); err != nil {
			return err
		}
		for _, scope := range scopes {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_scopes (user_id, scope_id) VALUES ($1, $2)`, userID, scope,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FinalizeScopes drops scopes the user is not allowed to hold
func (s *Storage) FinalizeScopes(
	ctx context.Context,
	scopes []models.Scope,
	_ string,
	_ *models.Client,
	userID string,
) ([]models.Scope, error) {
	const op = "storage.postgres.FinalizeScopes"

	if userID == "" {
		return scopes, nil
	}
	if _, err := uuid.Parse(userID); err != nil {
		return scopes, nil
	}
	rows, err := s.db.Query(ctx, `SELECT scope_id FROM user_scopes WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	allowed, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(allowed) == 0 {
		return scopes, nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	result := make([]models.Scope, 0, len(scopes))
	for _, scope := range scopes {
		if _, ok := set[scope.ID]; ok {
			result = append(result, scope)
		}
	}
	return result, nil
}

// SaveUser stores a user with a bcrypt hashed password and returns its id
func (s *Storage) SaveUser(ctx context.Context, username string, password string) (string, error) {
	const op = "storage.postgres.SaveUser"

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	id := uuid.NewString()
	if err := s.insertUnique(ctx, op,
		`INSERT INTO users (id, username, pass_hash) VALUES ($1, $2, $3)`, id, username, hash,
	); err != nil {
		return "", err
	}
	return id, nil
}

// UserByCredentials returns the user when username and password match
func (s *Storage) UserByCredentials(
	ctx context.Context,
	username string,
	password string,
	_ string,
	_ *models.Client,
) (*models.User, error) {
	const op = "storage.postgres.UserByCredentials"

	var user models.User
	err := s.db.QueryRow(ctx,
		`SELECT id::text, username, pass_hash FROM users WHERE username = $1`, username,
	).Scan(&user.ID, &user.Username, &user.PassHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			storage.CompareDummy(password)
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, storage.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

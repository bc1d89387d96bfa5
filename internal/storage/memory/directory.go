package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/storage"
)

// SaveClient registers a client; a non-empty secret makes it confidential
func (s *Storage) SaveClient(_ context.Context, client models.Client, secret string) error {
	const op = "storage.memory.SaveClient"
	if secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		client.SecretHash = hash
		client.Confidential = true
	}
	client.RedirectURIs = slices.Clone(client.RedirectURIs)
	client.Grants = slices.Clone(client.Grants)

	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	s.clients[client.ID] = client
	return nil
}

// Client gets client by its identifier
func (s *Storage) Client(_ context.Context, clientID string) (*models.Client, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	return &client, nil
}

// ValidateClient checks the secret of confidential clients and the grant allow-list.
// Unknown clients cost one bcrypt comparison, like a wrong secret.
func (s *Storage) ValidateClient(ctx context.Context, clientID string, secret string, grant string) (bool, error) {
	client, err := s.Client(ctx, clientID)
	if err != nil {
		storage.CheckClient(nil, secret, grant)
		return false, err
	}
	return storage.CheckClient(client, secret, grant), nil
}

// SaveScope registers a scope
func (s *Storage) SaveScope(_ context.Context, scope models.Scope) error {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	s.scopes[scope.ID] = scope
	return nil
}

func (s *Storage) ScopeByIdentifier(_ context.Context, id string) (*models.Scope, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	scope, ok := s.scopes[id]
	if !ok {
		return nil, storage.ErrScopeNotFound
	}
	return &scope, nil
}

// RestrictUserScopes limits the scopes FinalizeScopes grants to userID
func (s *Storage) RestrictUserScopes(_ context.Context, userID string, scopes []string) error {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	s.userScopes[userID] = slices.Clone(scopes)
	return nil
}

// FinalizeScopes drops scopes the user is not allowed to hold
func (s *Storage) FinalizeScopes(
	_ context.Context,
	scopes []models.Scope,
	_ string,
	_ *models.Client,
	userID string,
) ([]models.Scope, error) {
	s.dirMu.RLock()
	allowed, restricted := s.userScopes[userID]
	s.dirMu.RUnlock()
	if userID == "" || !restricted {
		return scopes, nil
	}
	result := make([]models.Scope, 0, len(scopes))
	for _, scope := range scopes {
		if slices.Contains(allowed, scope.ID) {
			result = append(result, scope)
		}
	}
	return result, nil
}

// SaveUser stores a user with a bcrypt hashed password and returns its id
func (s *Storage) SaveUser(_ context.Context, username string, password string) (string, error) {
	const op = "storage.memory.SaveUser"
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	if _, ok := s.users[username]; ok {
		return "", storage.ErrDuplicateIdentifier
	}
	user := models.User{ID: uuid.NewString(), Username: username, PassHash: hash}
	s.users[username] = user
	return user.ID, nil
}

// UserByCredentials returns the user when username and password match
func (s *Storage) UserByCredentials(
	_ context.Context,
	username string,
	password string,
	_ string,
	_ *models.Client,
) (*models.User, error) {
	s.dirMu.RLock()
	user, ok := s.users[username]
	s.dirMu.RUnlock()

	if !ok {
		storage.CompareDummy(password)
		return nil, storage.ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, storage.ErrInvalidCredentials
		}
		return nil, err
	}
	return &user, nil
}

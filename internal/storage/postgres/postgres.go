// Package postgres implements every repository of the engine on top of a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ssoengine/internal/storage"
)

// Retention keeps expired rows so revocation and consumption flags stay visible
const Retention = time.Hour

// ExtPool extends pgxpool.Pool with transaction helper
type ExtPool struct {
	*pgxpool.Pool
}

// NewExtPool opens a pool and checks the connection
func NewExtPool(ctx context.Context, connString string) (*ExtPool, error) {
	const op = "storage.postgres.NewExtPool"

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &ExtPool{Pool: pool}, nil
}

// WithTx runs fn inside a transaction, committing on nil and rolling back otherwise
func (p *ExtPool) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err = fn(tx); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			return fmt.Errorf("failed to rollback transaction: %w", errors.Join(err, rollbackErr))
		}
		return err
	}
	return tx.Commit(ctx)
}

// Storage instance for processing sql queries
type Storage struct {
	db *ExtPool
}

// New initialize an instance of storage db context
func New(ctx context.Context, connString string) (*Storage, error) {
	pool, err := NewExtPool(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Storage{db: pool}, nil
}

// NewFromPool wraps an existing pool
func NewFromPool(pool *ExtPool) *Storage {
	return &Storage{db: pool}
}

// Close ends database pool connection
func (s *Storage) Close() {
	s.db.Close()
}

// PurgeExpired deletes tokens and codes that expired before the retention window
func (s *Storage) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.PurgeExpired"

	before := now.Add(-Retention)
	var total int64
	for _, table := range []string{"access_tokens", "refresh_tokens", "auth_codes", "device_codes"} {
		tag, err := s.db.Exec(ctx, "DELETE FROM "+table+" WHERE expires_at < $1", before)
		if err != nil {
			return total, fmt.Errorf("%s: %w", op, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// isUniqueViolation reports a duplicate key error
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// insertUnique maps unique violations to storage.ErrDuplicateIdentifier
func (s *Storage) insertUnique(ctx context.Context, op string, sql string, args ...any) error {
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrDuplicateIdentifier)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

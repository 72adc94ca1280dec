// Package persistence implements the admin-session repository on SQLite.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/michael/internal/identity/application"
)

// SQLiteSessionRepository persists admin sessions keyed by token.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSQLiteSessionRepository creates the repository.
func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

// Insert stores a new session.
func (r *SQLiteSessionRepository) Insert(ctx context.Context, s application.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_sessions (token, created_at, expires_at)
		VALUES (?, ?, ?)`,
		s.Token, s.CreatedAt.UTC().Format(time.RFC3339), s.ExpiresAt.UTC().Format(time.RFC3339))
	return err
}

// Find returns the session for token, or nil when absent.
func (r *SQLiteSessionRepository) Find(ctx context.Context, token string) (*application.Session, error) {
	var (
		s                     application.Session
		createdStr, expiryStr string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT token, created_at, expires_at FROM admin_sessions WHERE token = ?`, token).
		Scan(&s.Token, &createdStr, &expiryStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339, createdStr); err != nil {
		return nil, fmt.Errorf("corrupt session created_at %q: %w", createdStr, err)
	}
	if s.ExpiresAt, err = time.Parse(time.RFC3339, expiryStr); err != nil {
		return nil, fmt.Errorf("corrupt session expires_at %q: %w", expiryStr, err)
	}
	return &s, nil
}

// Delete removes a session; deleting a missing token is not an error.
func (r *SQLiteSessionRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token = ?`, token)
	return err
}

// DeleteExpired removes every session whose expiry is at or before now.
func (r *SQLiteSessionRepository) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM admin_sessions WHERE expires_at <= ?`, now.UTC().Format(time.RFC3339))
	return err
}

// Package application implements the admin session lifecycle.
package application

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/felixgeelhaar/michael/internal/shared/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionInvalid     = errors.New("session is missing or expired")
)

// SessionTTL is how long an admin session stays valid.
const SessionTTL = 7 * 24 * time.Hour

// Session is one issued admin session.
type Session struct {
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Repository persists sessions.
type Repository interface {
	Insert(ctx context.Context, s Session) error
	Find(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) error
}

// SessionService issues, validates, and revokes admin sessions. The
// admin password arrives from process configuration; verification is
// constant time.
type SessionService struct {
	repo     Repository
	clock    sharedDomain.Clock
	password []byte
}

// NewSessionService creates the service.
func NewSessionService(repo Repository, clock sharedDomain.Clock, adminPassword string) *SessionService {
	return &SessionService{repo: repo, clock: clock, password: []byte(adminPassword)}
}

// Login verifies the password and issues a fresh session token.
// Already-expired sessions are cleaned up opportunistically.
func (s *SessionService) Login(ctx context.Context, password string) (*Session, error) {
	if subtle.ConstantTimeCompare([]byte(password), s.password) != 1 {
		return nil, ErrInvalidCredentials
	}

	now := s.clock.Now()
	if err := s.repo.DeleteExpired(ctx, now); err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	session := Session{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}
	if err := s.repo.Insert(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return &session, nil
}

// Validate checks a token. Expired rows found during lookup are deleted.
func (s *SessionService) Validate(ctx context.Context, token string) error {
	if token == "" {
		return ErrSessionInvalid
	}
	session, err := s.repo.Find(ctx, token)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionInvalid
	}
	if !session.ExpiresAt.After(s.clock.Now()) {
		if err := s.repo.Delete(ctx, token); err != nil {
			return err
		}
		return ErrSessionInvalid
	}
	return nil
}

// Logout revokes a token; revoking an unknown token succeeds.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.repo.Delete(ctx, token)
}

// newToken returns a 256-bit cryptographically random URL-safe token.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

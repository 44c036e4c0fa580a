package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// DefaultTTL is the lifetime of a session.
const DefaultTTL = 8 * time.Hour

var (
	// ErrNotFound is returned for unknown or revoked sessions.
	ErrNotFound = errors.New("session not found")

	// ErrExpired is returned for sessions past their expiry.
	ErrExpired = errors.New("session expired")

	// ErrUserMismatch is returned when a session belongs to another user.
	ErrUserMismatch = errors.New("session belongs to another user")
)

// Session is one login session.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	// Create opens a new session for the user.
	Create(ctx context.Context, userID, role string) (*Session, error)

	// Get returns an active session.
	Get(ctx context.Context, id string) (*Session, error)

	// Revoke ends a session. Revoking an unknown session returns ErrNotFound.
	Revoke(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}

// Verify checks that id names an active session owned by userID.
func Verify(ctx context.Context, store Store, id, userID string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, ErrUserMismatch
	}
	return s, nil
}

// NewID returns "session_" followed by 32 random hex characters.
func NewID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "session_" + hex.EncodeToString(b), nil
}

func newSession(userID, role string, now time.Time, ttl time.Duration) (*Session, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Session{
		ID:        id,
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

package session

import (
	"context"
	"errors"
	"time"

	"oauth-demo/internal/auth"

	"golang.org/x/oauth2"
)

var ErrNotFound = errors.New("session: not found")

// Session is an authenticated browser session. It is created by a
// successful OAuth2 login and carries the principal plus the tokens the
// login obtained, keyed by registration name.
type Session struct {
	ID                string                   `json:"id"`
	Principal         auth.Identity            `json:"principal"`
	Tokens            map[string]*oauth2.Token `json:"tokens,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	AbsoluteExpiresAt time.Time                `json:"absolute_expires_at"`
	ExpiresAt         time.Time                `json:"expires_at"` // idle expiry, never after AbsoluteExpiresAt
}

// New builds a session with a fresh id for the given principal.
func New(principal auth.Identity, now time.Time, idle, absolute time.Duration) (Session, error) {
	id, err := GenerateID()
	if err != nil {
		return Session{}, err
	}

	s := Session{
		ID:                id,
		Principal:         principal,
		CreatedAt:         now,
		AbsoluteExpiresAt: now.Add(absolute),
	}
	s.Touch(now, idle)

	return s, nil
}

// Expired reports whether either the idle or the absolute deadline passed.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt) || !now.Before(s.AbsoluteExpiresAt)
}

// Touch slides the idle deadline forward, capped at the absolute deadline.
func (s *Session) Touch(now time.Time, idle time.Duration) {
	exp := now.Add(idle)
	if exp.After(s.AbsoluteExpiresAt) {
		exp = s.AbsoluteExpiresAt
	}
	s.ExpiresAt = exp
}

// Store defines how sessions are stored and retrieved.
// Get returns (nil, nil) when the session does not exist.
// Update returns ErrNotFound when the session was deleted meanwhile.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}

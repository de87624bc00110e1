// Package session keeps server-side login sessions addressed by a signed cookie token.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoSession is returned when no live session matches the token.
	ErrNoSession = errors.New("no active session")
	// ErrInvalidToken is returned for tokens that fail signature or claim checks.
	ErrInvalidToken = errors.New("invalid session token")
)

// Session is the server-side state of one login.
type Session struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists sessions by id.
type Store interface {
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

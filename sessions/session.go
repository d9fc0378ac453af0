package sessions

import (
	"context"
	"time"

	"github.com/jrsteele09/care-auth-server/users"
)

// Session is a server-side browser session. The ID is the SHA-256 of the
// cookie value, so a leaked session table cannot be replayed as cookies.
type Session struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Role       users.Role `json:"role"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastSeenAt time.Time  `json:"last_seen_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Repo defines the interface for session storage operations.
type Repo interface {
	// Create stores a new session
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID, ErrNotFound when missing
	Get(ctx context.Context, id string) (*Session, error)

	// Touch records activity on a session
	Touch(ctx context.Context, id string, at time.Time) error

	// Delete removes a session. Missing sessions are not an error.
	Delete(ctx context.Context, id string) error

	// DeleteAllForUser removes every session belonging to userID
	DeleteAllForUser(ctx context.Context, userID string) error
}

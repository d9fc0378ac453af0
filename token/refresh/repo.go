package refresh

import (
	"context"
	"time"
)

// StoredRefreshToken is the server-side record of an issued refresh token.
// The client only ever holds the raw token; the record keeps its SHA-256 hash.
type StoredRefreshToken struct {
	ID           string     // Record identifier
	TokenHash    string     // hex(SHA-256(raw token))
	UserID       string     // Owning identity
	FamilyID     string     // Shared by every token produced by rotation from one login
	IssuedAt     time.Time  // Creation time
	ExpiresAt    time.Time  // Natural expiry
	RevokedAt    *time.Time // Set once, never cleared
	ReplacedByID string     // Set when revoked by rotation
}

// Revoked reports whether the token has left the Active state by revocation.
func (rt *StoredRefreshToken) Revoked() bool {
	return rt.RevokedAt != nil
}

// Expired reports whether the token is past its natural expiry at now.
func (rt *StoredRefreshToken) Expired(now time.Time) bool {
	return !now.Before(rt.ExpiresAt)
}

// Repo manages server-side storage of refresh token records.
//
// Revoke and Rotate are compare-and-set operations on the Active -> Revoked
// transition: of two concurrent calls on the same record exactly one succeeds.
type Repo interface {
	Create(ctx context.Context, token *StoredRefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*StoredRefreshToken, error)

	// Revoke reports whether this call performed the transition. A record that
	// is already revoked returns (false, nil); a missing record returns ErrNotFound.
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)

	// Rotate revokes oldID and stores next in one atomic step. If oldID was
	// already revoked it returns errors.ErrConflict and stores nothing.
	Rotate(ctx context.Context, oldID string, at time.Time, next *StoredRefreshToken) error

	RevokeFamily(ctx context.Context, familyID string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error
}

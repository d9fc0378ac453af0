package sqlstore

import (
	"context"
	"time"

	"github.com/jrsteele09/care-auth-server/internal/database"
	"github.com/jrsteele09/care-auth-server/sessions"
	"github.com/jrsteele09/care-auth-server/users"
)

var _ sessions.Repo = (*SessionRepo)(nil)

type SessionRepo struct {
	db *database.DB
}

func (r *SessionRepo) Create(ctx context.Context, s *sessions.Session) error {
	_, err := exec(ctx, r.db, r.db, `INSERT INTO sessions (id, user_id, role, created_at, expires_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, string(s.Role), s.CreatedAt.UTC(), s.ExpiresAt.UTC(), s.LastSeenAt.UTC())
	return err
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*sessions.Session, error) {
	row := r.db.QueryRowContext(ctx, r.db.Dialect().Rebind(
		"SELECT id, user_id, role, created_at, expires_at, last_seen_at FROM sessions WHERE id = ?"), id)

	var (
		s    sessions.Session
		role string
	)
	if err := row.Scan(&s.ID, &s.UserID, &role, &s.CreatedAt, &s.ExpiresAt, &s.LastSeenAt); err != nil {
		return nil, notFound(err)
	}
	s.Role = users.Role(role)
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.LastSeenAt = s.LastSeenAt.UTC()
	return &s, nil
}

func (r *SessionRepo) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := exec(ctx, r.db, r.db, "UPDATE sessions SET last_seen_at = ? WHERE id = ?", at.UTC(), id)
	return err
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := exec(ctx, r.db, r.db, "DELETE FROM sessions WHERE id = ?", id)
	return err
}

func (r *SessionRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := exec(ctx, r.db, r.db, "DELETE FROM sessions WHERE user_id = ?", userID)
	return err
}

// DeleteExpired removes sessions past their expiry. Expiry is enforced on
// read regardless; this only reclaims space.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := exec(ctx, r.db, r.db, "DELETE FROM sessions WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return 0, database.StoreError(err)
	}
	return n, nil
}

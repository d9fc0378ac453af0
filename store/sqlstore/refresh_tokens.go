package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jrsteele09/care-auth-server/internal/database"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/token/refresh"
)

const refreshColumns = "id, token_hash, user_id, family_id, issued_at, expires_at, revoked_at, replaced_by_id"

var _ refresh.Repo = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct {
	db *database.DB
}

func (r *RefreshTokenRepo) Create(ctx context.Context, rt *refresh.StoredRefreshToken) error {
	_, err := r.insert(ctx, r.db.DB, rt)
	return err
}

func (r *RefreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*refresh.StoredRefreshToken, error) {
	row := r.db.QueryRowContext(ctx, r.db.Dialect().Rebind("SELECT "+refreshColumns+" FROM refresh_tokens WHERE token_hash = ?"), tokenHash)

	var (
		rt        refresh.StoredRefreshToken
		revokedAt sql.NullTime
	)
	if err := row.Scan(&rt.ID, &rt.TokenHash, &rt.UserID, &rt.FamilyID, &rt.IssuedAt, &rt.ExpiresAt, &revokedAt, &rt.ReplacedByID); err != nil {
		return nil, notFound(err)
	}
	rt.IssuedAt = rt.IssuedAt.UTC()
	rt.ExpiresAt = rt.ExpiresAt.UTC()
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		rt.RevokedAt = &t
	}
	return &rt, nil
}

// Revoke is a conditional update: the row count decides which caller won.
func (r *RefreshTokenRepo) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := exec(ctx, r.db, r.db, "UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL", at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, r.db.Dialect().Rebind("SELECT 1 FROM refresh_tokens WHERE id = ?"), id).Scan(&exists)
	if err != nil {
		return false, notFound(err)
	}
	return false, nil
}

// Rotate revokes oldID and inserts next in one transaction.
func (r *RefreshTokenRepo) Rotate(ctx context.Context, oldID string, at time.Time, next *refresh.StoredRefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return database.StoreError(err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := exec(ctx, r.db, tx, "UPDATE refresh_tokens SET revoked_at = ?, replaced_by_id = ? WHERE id = ? AND revoked_at IS NULL",
		at.UTC(), next.ID, oldID)
	if err != nil {
		return err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrConflict
	}

	if _, err := r.insert(ctx, tx, next); err != nil {
		return err
	}
	return database.StoreError(tx.Commit())
}

func (r *RefreshTokenRepo) RevokeFamily(ctx context.Context, familyID string, at time.Time) error {
	_, err := exec(ctx, r.db, r.db, "UPDATE refresh_tokens SET revoked_at = ? WHERE family_id = ? AND revoked_at IS NULL", at.UTC(), familyID)
	return err
}

func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	_, err := exec(ctx, r.db, r.db, "UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL", at.UTC(), userID)
	return err
}

func (r *RefreshTokenRepo) insert(ctx context.Context, e execer, rt *refresh.StoredRefreshToken) (sql.Result, error) {
	var revokedAt sql.NullTime
	if rt.RevokedAt != nil {
		revokedAt = sql.NullTime{Time: rt.RevokedAt.UTC(), Valid: true}
	}
	return exec(ctx, r.db, e, `INSERT INTO refresh_tokens (`+refreshColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.ID, rt.TokenHash, rt.UserID, rt.FamilyID, rt.IssuedAt.UTC(), rt.ExpiresAt.UTC(), revokedAt, rt.ReplacedByID)
}

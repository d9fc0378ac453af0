// Package sqlstore implements the identity, refresh token and session
// repositories on database/sql for the SQLite and Postgres dialects.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jrsteele09/care-auth-server/internal/database"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
)

// Store hands out the three repositories over one connection pool.
type Store struct {
	db *database.DB
}

func New(db *database.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Users() *UserRepo {
	return &UserRepo{db: s.db}
}

func (s *Store) RefreshTokens() *RefreshTokenRepo {
	return &RefreshTokenRepo{db: s.db}
}

func (s *Store) Sessions() *SessionRepo {
	return &SessionRepo{db: s.db}
}

type scanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func exec(ctx context.Context, db *database.DB, e execer, query string, args ...any) (sql.Result, error) {
	res, err := e.ExecContext(ctx, db.Dialect().Rebind(query), args...)
	if err != nil {
		return nil, database.StoreError(err)
	}
	return res, nil
}

// notFound maps sql.ErrNoRows to ErrNotFound and passes everything else
// through database.StoreError.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	return database.StoreError(err)
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.StoreError(err)
	}
	return n, nil
}

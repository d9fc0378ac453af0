package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
)

// StoreError classifies driver failures. Connection refusals, requests pgx
// never sent, and SQLite lock contention become ErrStoreUnavailable; the rest
// goes through apperrors.StoreError.
func StoreError(err error) error {
	if err == nil || errors.Is(err, apperrors.ErrStoreUnavailable) {
		return err
	}
	if Transient(err) {
		return apperrors.Unavailable(err)
	}
	return apperrors.StoreError(err)
}

// Transient reports whether a retry of the same statement may succeed.
func Transient(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

package errors

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
)

// Error classes. Every specific error below unwraps to exactly one class, and
// the class is all that callers outside the core are allowed to see.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidSession     = errors.New("session invalid or expired")
	ErrValidation         = errors.New("validation failed")
	ErrStoreUnavailable   = errors.New("service temporarily unavailable")
)

var (
	// Authentication errors
	ErrUserNotFound       = newClassError(ErrInvalidCredentials, "user not found")
	ErrCredentialMismatch = newClassError(ErrInvalidCredentials, "credential mismatch")
	ErrUserInactive       = newClassError(ErrInvalidCredentials, "account inactive")

	// Token errors
	ErrTokenInvalid = newClassError(ErrInvalidToken, "token invalid")
	ErrTokenExpired = newClassError(ErrInvalidToken, "token expired")
	ErrTokenRevoked = newClassError(ErrInvalidToken, "token revoked")

	// Session errors
	ErrSessionInvalid = newClassError(ErrInvalidSession, "session invalid")
	ErrSessionExpired = newClassError(ErrInvalidSession, "session expired")

	// Registration errors
	ErrDuplicateEmail = newClassError(ErrValidation, "a user with this email already exists")
	ErrDuplicatePhone = newClassError(ErrValidation, "a user with this phone number already exists")
	ErrWeakPassword   = newClassError(ErrValidation, "password does not meet the strength requirements")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// InvalidCredentialsMessage is shown for every failed login.
const InvalidCredentialsMessage = "Invalid email or password."

type classError struct {
	class error
	msg   string
}

func newClassError(class error, msg string) error {
	return &classError{class: class, msg: msg}
}

func (e *classError) Error() string { return e.msg }

func (e *classError) Unwrap() error { return e.class }

// FieldErrors carries per-field registration failures. It unwraps to
// ErrValidation so it is classed with the other validation failures.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return strings.Join(parts, "; ")
}

func (fe FieldErrors) Unwrap() error { return ErrValidation }

// PublicMessage returns the text that may be shown to an end user for err.
// Credential and token failures always collapse to their class message.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return InvalidCredentialsMessage
	case errors.Is(err, ErrInvalidToken):
		return ErrInvalidToken.Error()
	case errors.Is(err, ErrInvalidSession):
		return ErrInvalidSession.Error()
	case errors.Is(err, ErrStoreUnavailable):
		return ErrStoreUnavailable.Error()
	case errors.Is(err, ErrValidation):
		var fe FieldErrors
		if errors.As(err, &fe) {
			return ErrValidation.Error()
		}
		for _, specific := range []error{ErrDuplicateEmail, ErrDuplicatePhone, ErrWeakPassword} {
			if errors.Is(err, specific) {
				return specific.Error()
			}
		}
		return ErrValidation.Error()
	default:
		return "internal error"
	}
}

// IsRetryable reports whether the caller may retry the request with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// StoreError maps infrastructure failures (timeouts, dropped connections,
// network errors) onto ErrStoreUnavailable and leaves every other error
// untouched. Driver-specific codes are classified by database.StoreError.
func StoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

// Unavailable marks err as a store availability failure.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}

package auth

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/users"
)

// UserFinder is the identity lookup the verifier needs.
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*users.User, error)
}

// Verifier checks an email and password against the identity store.
type Verifier struct {
	users        UserFinder
	storeTimeout time.Duration
}

func NewVerifier(finder UserFinder, storeTimeout time.Duration) *Verifier {
	return &Verifier{users: finder, storeTimeout: storeTimeout}
}

// dummyHash is compared against when the email is unknown so that a miss
// costs the same bcrypt work as a wrong password.
var dummyHash = sync.OnceValue(func() string {
	hash, err := users.HashPassword("care-auth-timing-equaliser")
	if err != nil {
		panic(err)
	}
	return hash
})

// Authenticate returns the identity for valid credentials. Every failure
// unwraps to ErrInvalidCredentials; the inactive check runs after the password
// check so account state is only revealed to someone holding the password.
func (v *Verifier) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	ctx, cancel := storeContext(ctx, v.storeTimeout)
	defer cancel()

	user, err := v.users.GetByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			users.CheckPasswordHash(password, dummyHash())
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrapf(apperrors.StoreError(err), "authenticate")
	}

	if !user.CheckPassword(password) {
		return nil, apperrors.ErrCredentialMismatch
	}
	if !user.CanAuthenticate() {
		return nil, apperrors.ErrUserInactive
	}
	return user, nil
}

func storeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

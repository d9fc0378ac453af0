package sessions

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/users"
)

const (
	cookieValueBytes = 32
	touchInterval    = time.Minute
)

type Manager struct {
	repo         Repo
	maxAge       time.Duration
	storeTimeout time.Duration
	nowFunc      func() time.Time
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithStoreTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.storeTimeout = d
	}
}

func NewManager(repo Repo, maxAge time.Duration, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:    repo,
		maxAge:  maxAge,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// MaxAge is the session lifetime, also used as the cookie Max-Age.
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// CreateSession stores a session for user and returns the cookie value.
func (m *Manager) CreateSession(ctx context.Context, user *users.User) (string, *Session, error) {
	if !user.CanAuthenticate() {
		return "", nil, apperrors.ErrUserInactive
	}

	buf := make([]byte, cookieValueBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	cookieValue := base64.RawURLEncoding.EncodeToString(buf)

	now := m.nowFunc().UTC()
	session := &Session{
		ID:         sessionID(cookieValue),
		UserID:     user.ID,
		Role:       user.Role,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.maxAge),
		LastSeenAt: now,
	}

	ctx, cancel := m.storeContext(ctx)
	defer cancel()
	if err := m.repo.Create(ctx, session); err != nil {
		return "", nil, apperrors.Wrapf(apperrors.StoreError(err), "creating session")
	}
	return cookieValue, session, nil
}

// ResolveSession maps a cookie value to its live session. Expired sessions are
// deleted on sight.
func (m *Manager) ResolveSession(ctx context.Context, cookieValue string) (*Session, error) {
	if cookieValue == "" {
		return nil, apperrors.ErrSessionInvalid
	}

	ctx, cancel := m.storeContext(ctx)
	defer cancel()

	id := sessionID(cookieValue)
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrSessionInvalid
		}
		return nil, apperrors.Wrapf(apperrors.StoreError(err), "resolving session")
	}

	now := m.nowFunc().UTC()
	if session.Expired(now) {
		if err := m.repo.Delete(ctx, id); err != nil {
			return nil, apperrors.Wrapf(apperrors.StoreError(err), "deleting expired session")
		}
		return nil, apperrors.ErrSessionExpired
	}

	if now.Sub(session.LastSeenAt) >= touchInterval {
		if err := m.repo.Touch(ctx, id, now); err != nil {
			return nil, apperrors.Wrapf(apperrors.StoreError(err), "touching session")
		}
		session.LastSeenAt = now
	}
	return session, nil
}

// TerminateSession deletes the session behind cookieValue, if any.
func (m *Manager) TerminateSession(ctx context.Context, cookieValue string) error {
	if cookieValue == "" {
		return nil
	}
	ctx, cancel := m.storeContext(ctx)
	defer cancel()

	if err := m.repo.Delete(ctx, sessionID(cookieValue)); err != nil {
		return apperrors.Wrapf(apperrors.StoreError(err), "terminating session")
	}
	return nil
}

func (m *Manager) TerminateAllForUser(ctx context.Context, userID string) error {
	ctx, cancel := m.storeContext(ctx)
	defer cancel()

	if err := m.repo.DeleteAllForUser(ctx, userID); err != nil {
		return apperrors.Wrapf(apperrors.StoreError(err), "terminating sessions for user")
	}
	return nil
}

func (m *Manager) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.storeTimeout)
}

func sessionID(cookieValue string) string {
	sum := sha256.Sum256([]byte(cookieValue))
	return hex.EncodeToString(sum[:])
}

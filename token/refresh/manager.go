package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/care-auth-server/internal/config"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/internal/ids"
)

// Manager handles refresh token creation, lookup and revocation
type Manager struct {
	repo    Repo
	config  config.TokenConfig
	nowFunc func() time.Time
}

type ManagerOption func(*Manager)

// WithNowFunc overrides the clock (tests).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// NewManager creates a new refresh token manager
func NewManager(repo Repo, cfg config.TokenConfig, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:    repo,
		config:  cfg,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// HashToken returns the hex SHA-256 of a raw token. Raw tokens are never stored.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// New builds (but does not store) a token for userID. An empty familyID starts a new family.
func (m *Manager) New(userID, familyID string) (raw string, rt *StoredRefreshToken, err error) {
	tokenBytes := make([]byte, m.config.GetRefreshTokenLength())
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	raw = hex.EncodeToString(tokenBytes)

	if familyID == "" {
		familyID = uuid.NewString()
	}
	now := m.nowFunc().UTC()
	return raw, &StoredRefreshToken{
		ID:        ids.New(),
		TokenHash: HashToken(raw),
		UserID:    userID,
		FamilyID:  familyID,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.config.GetRefreshTokenExpiry()),
	}, nil
}

// Create generates a new refresh token in a new family and stores it
func (m *Manager) Create(ctx context.Context, userID string) (string, *StoredRefreshToken, error) {
	raw, rt, err := m.New(userID, "")
	if err != nil {
		return "", nil, err
	}
	if err := m.repo.Create(ctx, rt); err != nil {
		return "", nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return raw, rt, nil
}

// Lookup finds the record for a raw token. Malformed or unknown tokens are ErrTokenInvalid.
func (m *Manager) Lookup(ctx context.Context, raw string) (*StoredRefreshToken, error) {
	if !m.wellFormed(raw) {
		return nil, apperrors.ErrTokenInvalid
	}
	rt, err := m.repo.GetByHash(ctx, HashToken(raw))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrTokenInvalid
		}
		return nil, err
	}
	return rt, nil
}

// Rotate revokes current and stores a successor in the same family.
func (m *Manager) Rotate(ctx context.Context, current *StoredRefreshToken) (string, *StoredRefreshToken, error) {
	raw, next, err := m.New(current.UserID, current.FamilyID)
	if err != nil {
		return "", nil, err
	}
	if err := m.repo.Rotate(ctx, current.ID, m.nowFunc().UTC(), next); err != nil {
		if apperrors.Is(err, apperrors.ErrConflict) {
			return "", nil, apperrors.ErrTokenRevoked
		}
		return "", nil, err
	}
	return raw, next, nil
}

// Revoke performs the compare-and-set transition and reports whether this call won it.
func (m *Manager) Revoke(ctx context.Context, rt *StoredRefreshToken) (bool, error) {
	return m.repo.Revoke(ctx, rt.ID, m.nowFunc().UTC())
}

func (m *Manager) RevokeFamily(ctx context.Context, familyID string) error {
	return m.repo.RevokeFamily(ctx, familyID, m.nowFunc().UTC())
}

func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) error {
	return m.repo.RevokeAllForUser(ctx, userID, m.nowFunc().UTC())
}

// IsExpired checks if a refresh token has expired
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return rt.Expired(m.nowFunc())
}

func (m *Manager) wellFormed(raw string) bool {
	if len(raw) != 2*m.config.GetRefreshTokenLength() {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}

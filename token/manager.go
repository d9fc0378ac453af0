package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/care-auth-server/internal/config"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/token/refresh"
	"github.com/jrsteele09/care-auth-server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const TokenTypeBearer = "Bearer"

// UserReader is the slice of the identity store the token service needs for
// its live activity checks.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*users.User, error)
}

type Manager struct {
	signer       Signer
	refresh      *refresh.Manager
	users        UserReader
	config       config.TokenConfig
	storeTimeout time.Duration
	nowFunc      func() time.Time
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithStoreTimeout bounds the store work of each operation.
func WithStoreTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.storeTimeout = d
	}
}

func New(signer Signer, refreshRepo refresh.Repo, userReader UserReader, cfg config.TokenConfig, options ...ManagerOption) *Manager {
	m := &Manager{
		signer:  signer,
		users:   userReader,
		config:  cfg,
		nowFunc: time.Now,
	}

	for _, opt := range options {
		opt(m)
	}

	m.refresh = refresh.NewManager(refreshRepo, cfg, refresh.WithNowFunc(func() time.Time { return m.nowFunc() }))
	return m
}

// IssueTokenPair signs an access token and starts a new refresh token family.
func (m *Manager) IssueTokenPair(ctx context.Context, user *users.User) (*TokenPair, error) {
	if !user.CanAuthenticate() {
		return nil, apperrors.ErrUserInactive
	}

	ctx, cancel := m.storeContext(ctx)
	defer cancel()

	raw, rt, err := m.refresh.Create(ctx, user.ID)
	if err != nil {
		return nil, errors.Wrap(apperrors.StoreError(err), "Manager.IssueTokenPair Create")
	}
	return m.tokenPair(user, raw, rt)
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// always rotated; presenting a token that was already rotated revokes its whole
// family.
func (m *Manager) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	ctx, cancel := m.storeContext(ctx)
	defer cancel()

	rt, err := m.refresh.Lookup(ctx, rawRefresh)
	if err != nil {
		return nil, apperrors.StoreError(err)
	}

	if rt.Revoked() {
		if rt.ReplacedByID != "" {
			log.Warn().Str("user_id", rt.UserID).Str("family_id", rt.FamilyID).Msg("refresh token reuse detected, revoking family")
			if err := m.refresh.RevokeFamily(ctx, rt.FamilyID); err != nil {
				return nil, errors.Wrap(apperrors.StoreError(err), "Manager.Refresh RevokeFamily")
			}
		}
		return nil, apperrors.ErrTokenRevoked
	}
	if m.refresh.IsExpired(rt) {
		return nil, apperrors.ErrTokenExpired
	}

	user, err := m.users.GetByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if _, err := m.refresh.Revoke(ctx, rt); err != nil {
				log.Err(err).Str("token_id", rt.ID).Str("user_id", rt.UserID).Msg("failed to revoke refresh token of deleted user")
			}
			return nil, apperrors.ErrTokenInvalid
		}
		return nil, errors.Wrap(apperrors.StoreError(err), "Manager.Refresh GetByID")
	}
	if !user.CanAuthenticate() {
		if err := m.refresh.RevokeAllForUser(ctx, user.ID); err != nil {
			return nil, errors.Wrap(apperrors.StoreError(err), "Manager.Refresh RevokeAllForUser")
		}
		return nil, apperrors.ErrTokenRevoked
	}

	raw, next, err := m.refresh.Rotate(ctx, rt)
	if err != nil {
		if errors.Is(err, apperrors.ErrTokenRevoked) {
			return nil, err
		}
		return nil, errors.Wrap(apperrors.StoreError(err), "Manager.Refresh Rotate")
	}
	return m.tokenPair(user, raw, next)
}

// Revoke invalidates a refresh token. Unknown, expired and already revoked
// tokens are not an error. Access tokens already issued stay valid until they expire.
func (m *Manager) Revoke(ctx context.Context, rawRefresh string) error {
	ctx, cancel := m.storeContext(ctx)
	defer cancel()

	rt, err := m.refresh.Lookup(ctx, rawRefresh)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidToken) {
			return nil
		}
		return errors.Wrap(apperrors.StoreError(err), "Manager.Revoke Lookup")
	}
	if rt.Revoked() || m.refresh.IsExpired(rt) {
		return nil
	}
	if _, err := m.refresh.Revoke(ctx, rt); err != nil {
		return errors.Wrap(apperrors.StoreError(err), "Manager.Revoke")
	}
	return nil
}

// RevokeAllForUser revokes every refresh token the identity holds.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) error {
	ctx, cancel := m.storeContext(ctx)
	defer cancel()

	if err := m.refresh.RevokeAllForUser(ctx, userID); err != nil {
		return errors.Wrap(apperrors.StoreError(err), "Manager.RevokeAllForUser")
	}
	return nil
}

// VerifyAccessToken checks signature, expiry, issuer and audience, then reads
// the identity so deactivation and role changes apply to tokens already issued.
// The returned claims carry the stored role, not the one signed into the token.
func (m *Manager) VerifyAccessToken(ctx context.Context, rawToken string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, m.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithIssuer(m.config.GetIssuer()),
		jwt.WithAudience(m.config.GetAudience()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.nowFunc),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrTokenInvalid
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, apperrors.ErrTokenInvalid
	}

	ctx, cancel := m.storeContext(ctx)
	defer cancel()

	user, err := m.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrTokenRevoked
		}
		return nil, errors.Wrap(apperrors.StoreError(err), "Manager.VerifyAccessToken GetByID")
	}
	if !user.CanAuthenticate() {
		return nil, apperrors.ErrTokenRevoked
	}

	claims.Role = user.Role
	return claims, nil
}

// JWKS returns the public key set. Only key pair signers have one.
func (m *Manager) JWKS() (*JWKS, error) {
	keyPairSigner, ok := m.signer.(*KeyPairSigner)
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return keyPairSigner.GetJWKS()
}

func (m *Manager) tokenPair(user *users.User, rawRefresh string, rt *refresh.StoredRefreshToken) (*TokenPair, error) {
	accessToken, accessExpiresAt, err := m.createAccessToken(user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     rawRefresh,
		TokenType:        TokenTypeBearer,
		ExpiresIn:        int(m.config.GetAccessTokenExpiry().Seconds()),
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: rt.ExpiresAt,
	}, nil
}

func (m *Manager) createAccessToken(user *users.User) (string, time.Time, error) {
	now := m.nowFunc()
	expiresAt := now.Add(m.config.GetAccessTokenExpiry())

	claims := &Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.GetIssuer(),
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{m.config.GetAudience()},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signedToken, err := m.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "Manager.createAccessToken")
	}
	return signedToken, expiresAt, nil
}

func (m *Manager) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.storeTimeout)
}

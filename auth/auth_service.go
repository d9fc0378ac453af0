package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/care-auth-server/guard"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/sessions"
	"github.com/jrsteele09/care-auth-server/token"
	"github.com/jrsteele09/care-auth-server/users"
	"github.com/rs/zerolog/log"
)

// Service composes the identity store, credential verifier, token service,
// session manager and role guard into the operations the HTTP surfaces and
// the admin CLI call.
type Service struct {
	users        users.Repo
	verifier     *Verifier
	tokens       *token.Manager
	sessions     *sessions.Manager
	guard        *guard.Guard
	defaultRole  users.Role
	storeTimeout time.Duration
	nowTime      func() time.Time
}

type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.storeTimeout = d
	}
}

// WithDefaultRole sets the role given to sign-ups that do not choose one.
func WithDefaultRole(role users.Role) ServiceOption {
	return func(s *Service) {
		s.defaultRole = role
	}
}

func NewService(
	userRepo users.Repo,
	tokens *token.Manager,
	sessionManager *sessions.Manager,
	roleGuard *guard.Guard,
	options ...ServiceOption,
) (*Service, error) {
	if userRepo == nil {
		return nil, apperrors.New("[NewService] users repo is required")
	}
	if tokens == nil {
		return nil, apperrors.New("[NewService] token manager is required")
	}
	if sessionManager == nil {
		return nil, apperrors.New("[NewService] session manager is required")
	}
	if roleGuard == nil {
		roleGuard = guard.New()
	}

	s := &Service{
		users:       userRepo,
		tokens:      tokens,
		sessions:    sessionManager,
		guard:       roleGuard,
		defaultRole: users.DefaultRole,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if !s.defaultRole.Valid() {
		return nil, fmt.Errorf("[NewService] invalid default role %q", s.defaultRole)
	}
	s.verifier = NewVerifier(userRepo, s.storeTimeout)
	return s, nil
}

func (s *Service) Guard() *guard.Guard {
	return s.guard
}

func (s *Service) Tokens() *token.Manager {
	return s.tokens
}

// Register creates an active, unverified identity.
func (s *Service) Register(ctx context.Context, req RegistrationRequest) (*users.User, error) {
	req.normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := users.ValidatePasswordStrength(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrWeakPassword, err.Error())
	}

	role := s.defaultRole
	if req.Role != "" {
		parsed, err := users.ParseRole(req.Role)
		if err != nil {
			return nil, apperrors.FieldErrors{"role": err.Error()}
		}
		role = parsed
	}

	hash, err := users.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := s.nowTime().UTC()
	user := &users.User{
		Email:        req.Email,
		FullName:     req.FullName,
		Phone:        req.Phone,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.Wrapf(apperrors.StoreError(err), "register")
	}

	log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	return user, nil
}

// SignupWithTokens registers and signs the new identity in on the API surface.
func (s *Service) SignupWithTokens(ctx context.Context, req RegistrationRequest) (*users.User, *token.TokenPair, error) {
	user, err := s.Register(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.tokens.IssueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	s.recordLogin(ctx, user)
	if user, err = s.confirmTokenHolder(ctx, user.ID, pair); err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// BrowserSignup registers and opens a session, replacing previousCookie's session.
func (s *Service) BrowserSignup(ctx context.Context, req RegistrationRequest, previousCookie string) (*users.User, string, error) {
	user, err := s.Register(ctx, req)
	if err != nil {
		return nil, "", err
	}
	cookie, err := s.openSession(ctx, user, previousCookie)
	if err != nil {
		return nil, "", err
	}
	return user, cookie, nil
}

// Login authenticates on the API surface and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*users.User, *token.TokenPair, error) {
	user, err := s.verifier.Authenticate(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.tokens.IssueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	s.recordLogin(ctx, user)
	if user, err = s.confirmTokenHolder(ctx, user.ID, pair); err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// BrowserLogin authenticates and opens a session. A session still held by the
// same browser is terminated first.
func (s *Service) BrowserLogin(ctx context.Context, email, password, previousCookie string) (*users.User, string, error) {
	user, err := s.verifier.Authenticate(ctx, email, password)
	if err != nil {
		return nil, "", err
	}
	cookie, err := s.openSession(ctx, user, previousCookie)
	if err != nil {
		return nil, "", err
	}
	return user, cookie, nil
}

// Logout revokes a refresh token. Issued access tokens run until they expire.
func (s *Service) Logout(ctx context.Context, rawRefresh string) error {
	return s.tokens.Revoke(ctx, rawRefresh)
}

func (s *Service) BrowserLogout(ctx context.Context, cookie string) error {
	return s.sessions.TerminateSession(ctx, cookie)
}

// ResolveBrowser turns a session cookie into a principal. The identity is
// re-read so a deactivated account loses its session on the next request.
func (s *Service) ResolveBrowser(ctx context.Context, cookie string) (*guard.Principal, error) {
	session, err := s.sessions.ResolveSession(ctx, cookie)
	if err != nil {
		return nil, err
	}

	user, err := s.getUser(ctx, session.UserID)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if err != nil || !user.CanAuthenticate() {
		if terr := s.sessions.TerminateSession(ctx, cookie); terr != nil {
			log.Err(terr).Str("user_id", session.UserID).Msg("failed to terminate session of unavailable user")
		}
		return nil, apperrors.ErrSessionInvalid
	}

	return &guard.Principal{
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		SessionID: session.ID,
	}, nil
}

// ResolveBearer turns an access token into a principal carrying the current role.
func (s *Service) ResolveBearer(ctx context.Context, rawToken string) (*guard.Principal, error) {
	claims, err := s.tokens.VerifyAccessToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	return &guard.Principal{UserID: claims.UserID(), Role: claims.Role}, nil
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*token.TokenPair, error) {
	return s.tokens.Refresh(ctx, rawRefresh)
}

func (s *Service) openSession(ctx context.Context, user *users.User, previousCookie string) (string, error) {
	if previousCookie != "" {
		if err := s.sessions.TerminateSession(ctx, previousCookie); err != nil {
			return "", err
		}
	}
	cookie, _, err := s.sessions.CreateSession(ctx, user)
	if err != nil {
		return "", err
	}
	s.recordLogin(ctx, user)

	current, err := s.getUser(ctx, user.ID)
	if err == nil && current.CanAuthenticate() {
		*user = *current
		return cookie, nil
	}
	if terr := s.sessions.TerminateSession(ctx, cookie); terr != nil {
		log.Err(terr).Str("user_id", user.ID).Msg("failed to withdraw session of deactivated user")
	}
	return "", unavailableOrInactive(err)
}

// confirmTokenHolder re-reads the identity after a pair was issued from an
// earlier read. A deactivation that landed in between withdraws the pair here;
// one that lands later revokes it itself.
func (s *Service) confirmTokenHolder(ctx context.Context, userID string, pair *token.TokenPair) (*users.User, error) {
	current, err := s.getUser(ctx, userID)
	if err == nil && current.CanAuthenticate() {
		return current, nil
	}
	if rerr := s.tokens.Revoke(ctx, pair.RefreshToken); rerr != nil {
		log.Err(rerr).Str("user_id", userID).Msg("failed to withdraw tokens of deactivated user")
	}
	return nil, unavailableOrInactive(err)
}

func unavailableOrInactive(err error) error {
	if err != nil && apperrors.IsRetryable(err) {
		return err
	}
	return apperrors.ErrUserInactive
}

// recordLogin stamps LastLoginAt and nothing else. A failure is logged, not
// returned: the login itself already succeeded.
func (s *Service) recordLogin(ctx context.Context, user *users.User) {
	now := s.nowTime().UTC()
	user.LastLoginAt = &now

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		log.Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}
}

func (s *Service) getUser(ctx context.Context, userID string) (*users.User, error) {
	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperrors.StoreError(err)
	}
	return user, nil
}

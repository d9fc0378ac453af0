package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/care-auth-server/auth"
	"github.com/jrsteele09/care-auth-server/guard"
	"github.com/jrsteele09/care-auth-server/internal/config"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/sessions"
	fakesessionrepo "github.com/jrsteele09/care-auth-server/sessions/repofake"
	"github.com/jrsteele09/care-auth-server/token"
	refreshrepofake "github.com/jrsteele09/care-auth-server/token/refresh/repofake"
	"github.com/jrsteele09/care-auth-server/users"
	fakeuserrepo "github.com/jrsteele09/care-auth-server/users/repofake"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	secretStr        = "auth-service-test-secret-0123456789"
	testUserEmail    = "jane.doe@example.com"
	testUserPassword = "Password123"
)

// testFixture holds all test dependencies
type testFixture struct {
	now         time.Time
	userRepo    *fakeuserrepo.FakeUserRepo
	refreshRepo *refreshrepofake.FakeRefreshTokenRepo
	sessionRepo *fakesessionrepo.FakeSessionRepo
	tokens      *token.Manager
	service     *auth.Service
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	users.HashCost = bcrypt.MinCost

	f := &testFixture{
		now:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		userRepo:    fakeuserrepo.NewFakeUserRepo(),
		refreshRepo: refreshrepofake.NewFakeRefreshTokenRepo(),
		sessionRepo: fakesessionrepo.NewFakeSessionRepo(),
	}
	nowFunc := func() time.Time { return f.now }

	f.tokens = token.New(mustSigner(t), f.refreshRepo, f.userRepo, config.New(), token.WithNowFunc(nowFunc))
	sessionManager := sessions.NewManager(f.sessionRepo, 12*time.Hour, sessions.WithNowFunc(nowFunc))

	service, err := auth.NewService(f.userRepo, f.tokens, sessionManager, guard.New(),
		auth.WithNowTime(nowFunc),
		auth.WithStoreTimeout(time.Second),
	)
	require.NoError(t, err)
	f.service = service
	return f
}

func (f *testFixture) register(t *testing.T, email string, role users.Role) *users.User {
	t.Helper()
	u, err := f.service.Register(context.Background(), auth.RegistrationRequest{
		FullName:        "Test User",
		Email:           email,
		Password:        testUserPassword,
		ConfirmPassword: testUserPassword,
		Role:            string(role),
	})
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		f := setupTestFixture(t)
		u, err := f.service.Register(ctx, auth.RegistrationRequest{
			FullName:        " Jane Doe ",
			Email:           " Jane.Doe@Example.com",
			Phone:           "+1 (555) 000-1234",
			Password:        testUserPassword,
			ConfirmPassword: testUserPassword,
		})
		require.NoError(t, err)
		require.Equal(t, testUserEmail, u.Email)
		require.Equal(t, "Jane Doe", u.FullName)
		require.Equal(t, "+15550001234", u.Phone)
		require.Equal(t, users.RolePatient, u.Role)
		require.True(t, u.Active)
		require.False(t, u.Verified)
		require.NotEqual(t, testUserPassword, u.PasswordHash)
		require.True(t, u.CheckPassword(testUserPassword))
	})

	t.Run("role chosen at sign up", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.register(t, testUserEmail, users.RoleClinician)
		require.Equal(t, users.RoleClinician, u.Role)
	})

	t.Run("field errors", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.Register(ctx, auth.RegistrationRequest{
			Email:           "not-an-email",
			Password:        testUserPassword,
			ConfirmPassword: "Different123",
			Role:            "admin",
		})
		require.ErrorIs(t, err, apperrors.ErrValidation)
		fe := auth.FieldErrorsFor(err)
		require.Contains(t, fe, "full_name")
		require.Contains(t, fe, "email")
		require.Contains(t, fe, "role")
		require.Equal(t, "passwords do not match", fe["confirm_password"])
	})

	t.Run("weak password", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.Register(ctx, auth.RegistrationRequest{
			FullName:        "Jane",
			Email:           testUserEmail,
			Password:        "alllowercase1",
			ConfirmPassword: "alllowercase1",
		})
		require.ErrorIs(t, err, apperrors.ErrWeakPassword)
		require.Contains(t, auth.FieldErrorsFor(err)["password"], "uppercase")
	})

	t.Run("duplicate email ignores case", func(t *testing.T) {
		f := setupTestFixture(t)
		f.register(t, testUserEmail, "")
		_, err := f.service.Register(ctx, auth.RegistrationRequest{
			FullName:        "Jane Again",
			Email:           "JANE.DOE@example.com",
			Password:        testUserPassword,
			ConfirmPassword: testUserPassword,
		})
		require.ErrorIs(t, err, apperrors.ErrDuplicateEmail)
		require.Equal(t, apperrors.ErrDuplicateEmail.Error(), auth.FieldErrorsFor(err)["email"])
	})

	t.Run("duplicate phone", func(t *testing.T) {
		f := setupTestFixture(t)
		req := auth.RegistrationRequest{FullName: "A", Email: "a@example.com", Phone: "5550001234", Password: testUserPassword, ConfirmPassword: testUserPassword}
		_, err := f.service.Register(ctx, req)
		require.NoError(t, err)
		req.Email = "b@example.com"
		_, err = f.service.Register(ctx, req)
		require.ErrorIs(t, err, apperrors.ErrDuplicatePhone)
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("every failure has the same public message", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.register(t, testUserEmail, users.RolePatient)
		require.NoError(t, f.service.SetActive(ctx, u.ID, false))

		_, _, errUnknown := f.service.Login(ctx, "nobody@example.com", testUserPassword)
		_, _, errMismatch := f.service.Login(ctx, testUserEmail, "WrongPassword1")
		_, _, errInactive := f.service.Login(ctx, testUserEmail, testUserPassword)

		require.ErrorIs(t, errUnknown, apperrors.ErrUserNotFound)
		require.ErrorIs(t, errMismatch, apperrors.ErrCredentialMismatch)
		require.ErrorIs(t, errInactive, apperrors.ErrUserInactive)
		for _, err := range []error{errUnknown, errMismatch, errInactive} {
			require.Equal(t, apperrors.InvalidCredentialsMessage, apperrors.PublicMessage(err))
		}
	})

	t.Run("inactive status is hidden without the password", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.register(t, testUserEmail, users.RolePatient)
		require.NoError(t, f.service.SetActive(ctx, u.ID, false))

		_, _, err := f.service.Login(ctx, testUserEmail, "WrongPassword1")
		require.ErrorIs(t, err, apperrors.ErrCredentialMismatch)
	})

	t.Run("store unavailable", func(t *testing.T) {
		f := setupTestFixture(t)
		f.userRepo.Err = context.DeadlineExceeded
		_, _, err := f.service.Login(ctx, testUserEmail, testUserPassword)
		require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
		require.True(t, apperrors.IsRetryable(err))
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.register(t, testUserEmail, users.RoleClinician)

	u, pair, err := f.service.Login(ctx, "JANE.DOE@EXAMPLE.COM", testUserPassword)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	stored, err := f.userRepo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	require.Equal(t, f.now, *stored.LastLoginAt)

	p, err := f.service.ResolveBearer(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, users.RoleClinician, p.Role)

	next, err := f.service.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, f.service.Logout(ctx, next.RefreshToken))
	require.NoError(t, f.service.Logout(ctx, next.RefreshToken))
	_, err = f.service.Refresh(ctx, next.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
}

func TestBrowserLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the previous session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.register(t, testUserEmail, users.RolePatient)

		_, first, err := f.service.BrowserLogin(ctx, testUserEmail, testUserPassword, "")
		require.NoError(t, err)
		_, second, err := f.service.BrowserLogin(ctx, testUserEmail, testUserPassword, first)
		require.NoError(t, err)
		require.Equal(t, 1, f.sessionRepo.Count())

		_, err = f.service.ResolveBrowser(ctx, first)
		require.ErrorIs(t, err, apperrors.ErrSessionInvalid)
		p, err := f.service.ResolveBrowser(ctx, second)
		require.NoError(t, err)
		require.Equal(t, users.RolePatient, p.Role)
		require.Equal(t, testUserEmail, p.Email)
	})

	t.Run("logout", func(t *testing.T) {
		f := setupTestFixture(t)
		f.register(t, testUserEmail, users.RolePatient)
		_, cookie, err := f.service.BrowserLogin(ctx, testUserEmail, testUserPassword, "")
		require.NoError(t, err)

		require.NoError(t, f.service.BrowserLogout(ctx, cookie))
		_, err = f.service.ResolveBrowser(ctx, cookie)
		require.ErrorIs(t, err, apperrors.ErrSessionInvalid)
	})

	t.Run("browser signup opens a session", func(t *testing.T) {
		f := setupTestFixture(t)
		u, cookie, err := f.service.BrowserSignup(ctx, auth.RegistrationRequest{
			FullName: "Org", Email: "org@example.com", Password: testUserPassword, ConfirmPassword: testUserPassword, Role: "organization",
		}, "")
		require.NoError(t, err)
		p, err := f.service.ResolveBrowser(ctx, cookie)
		require.NoError(t, err)
		require.Equal(t, u.ID, p.UserID)
		require.Equal(t, users.RoleOrganization, p.Role)
	})
}

func TestSetActive(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.register(t, testUserEmail, users.RoleClinician)

	_, pair, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
	_, cookie, err := f.service.BrowserLogin(ctx, testUserEmail, testUserPassword, "")
	require.NoError(t, err)

	require.NoError(t, f.service.SetActive(ctx, u.ID, false))

	_, err = f.service.ResolveBrowser(ctx, cookie)
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
	require.Zero(t, f.sessionRepo.Count())

	_, err = f.service.ResolveBearer(ctx, pair.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	t.Run("reactivation does not revive old credentials", func(t *testing.T) {
		require.NoError(t, f.service.SetActive(ctx, u.ID, true))
		_, err := f.service.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, apperrors.ErrTokenRevoked)

		_, _, err = f.service.Login(ctx, testUserEmail, testUserPassword)
		require.NoError(t, err)
	})
}

// interleavingRepo runs afterEmailLookup once, right after the credential
// lookup has read the identity.
type interleavingRepo struct {
	*fakeuserrepo.FakeUserRepo
	afterEmailLookup func(u *users.User)
}

func (r *interleavingRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	u, err := r.FakeUserRepo.GetByEmail(ctx, email)
	if err == nil && r.afterEmailLookup != nil {
		hook := r.afterEmailLookup
		r.afterEmailLookup = nil
		hook(u)
	}
	return u, err
}

func mustSigner(t *testing.T) token.Signer {
	t.Helper()
	signer, err := token.NewHMACSigner(secretStr)
	require.NoError(t, err)
	return signer
}

func (f *testFixture) interleavedService(t *testing.T, repo *interleavingRepo) *auth.Service {
	t.Helper()
	nowFunc := func() time.Time { return f.now }
	tokens := token.New(mustSigner(t), f.refreshRepo, repo, config.New(), token.WithNowFunc(nowFunc))
	service, err := auth.NewService(repo, tokens,
		sessions.NewManager(f.sessionRepo, 12*time.Hour, sessions.WithNowFunc(nowFunc)), guard.New(),
		auth.WithNowTime(nowFunc),
		auth.WithStoreTimeout(time.Second),
	)
	require.NoError(t, err)
	return service
}

func TestAdminChangeDuringLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivation wins over an api login", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.register(t, testUserEmail, users.RoleClinician)
		repo := &interleavingRepo{FakeUserRepo: f.userRepo}
		svc := f.interleavedService(t, repo)
		repo.afterEmailLookup = func(*users.User) {
			require.NoError(t, svc.SetActive(ctx, u.ID, false))
		}

		_, pair, err := svc.Login(ctx, testUserEmail, testUserPassword)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		require.Nil(t, pair)

		stored, err := f.userRepo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, stored.Active)
		for _, rt := range f.refreshRepo.All() {
			require.True(t, rt.Revoked(), "refresh token %s left active", rt.ID)
		}
	})

	t.Run("deactivation wins over a browser login", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.register(t, testUserEmail, users.RolePatient)
		repo := &interleavingRepo{FakeUserRepo: f.userRepo}
		svc := f.interleavedService(t, repo)
		repo.afterEmailLookup = func(*users.User) {
			require.NoError(t, svc.SetActive(ctx, u.ID, false))
		}

		_, cookie, err := svc.BrowserLogin(ctx, testUserEmail, testUserPassword, "")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		require.Empty(t, cookie)
		require.Zero(t, f.sessionRepo.Count())

		stored, err := f.userRepo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, stored.Active)
	})

	t.Run("role change is not overwritten by the login stamp", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.register(t, testUserEmail, users.RolePatient)
		repo := &interleavingRepo{FakeUserRepo: f.userRepo}
		svc := f.interleavedService(t, repo)
		repo.afterEmailLookup = func(*users.User) {
			require.NoError(t, svc.ChangeRole(ctx, u.ID, users.RoleClinician))
		}

		got, _, err := svc.Login(ctx, testUserEmail, testUserPassword)
		require.NoError(t, err)
		require.Equal(t, users.RoleClinician, got.Role)

		stored, err := f.userRepo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, users.RoleClinician, stored.Role)
		require.True(t, stored.Active)
		require.Equal(t, f.now, *stored.LastLoginAt)
	})
}

func TestChangeRole(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.register(t, testUserEmail, users.RolePatient)

	_, pair, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
	_, cookie, err := f.service.BrowserLogin(ctx, testUserEmail, testUserPassword, "")
	require.NoError(t, err)

	require.ErrorIs(t, f.service.ChangeRole(ctx, u.ID, users.Role("admin")), apperrors.ErrValidation)
	require.NoError(t, f.service.ChangeRole(ctx, u.ID, users.RoleClinician))

	_, err = f.service.ResolveBrowser(ctx, cookie)
	require.ErrorIs(t, err, apperrors.ErrSessionInvalid)

	p, err := f.service.ResolveBearer(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, users.RoleClinician, p.Role)

	profile, err := f.service.Profile(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "/dashboard/clinician/", profile.DashboardURL)
	require.Equal(t, "Clinician", profile.RoleLabel)
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.register(t, testUserEmail, users.RolePatient)
	_, pair, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteUser(ctx, u.ID))

	_, err = f.service.ResolveBearer(ctx, pair.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
	_, _, err = f.service.Login(ctx, testUserEmail, testUserPassword)
	require.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestSeedAndBootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("seed is idempotent", func(t *testing.T) {
		f := setupTestFixture(t)
		created, err := f.service.SeedTestUsers(ctx)
		require.NoError(t, err)
		require.Len(t, created, len(auth.TestUsers))

		created, err = f.service.SeedTestUsers(ctx)
		require.NoError(t, err)
		require.Empty(t, created)

		u, _, err := f.service.Login(ctx, "doctor@intimacare.com", "doctor123")
		require.NoError(t, err)
		require.Equal(t, users.RoleClinician, u.Role)
		require.True(t, u.Verified)
	})

	t.Run("bootstrap only on an empty organization set", func(t *testing.T) {
		f := setupTestFixture(t)
		password, created, err := f.service.Bootstrap(ctx, "owner@example.com")
		require.NoError(t, err)
		require.True(t, created)
		require.NoError(t, users.ValidatePasswordStrength(password))

		u, _, err := f.service.Login(ctx, "owner@example.com", password)
		require.NoError(t, err)
		require.Equal(t, users.RoleOrganization, u.Role)

		_, created, err = f.service.Bootstrap(ctx, "second@example.com")
		require.NoError(t, err)
		require.False(t, created)
	})
}

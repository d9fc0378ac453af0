package sqlstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/care-auth-server/internal/database"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/sessions"
	"github.com/jrsteele09/care-auth-server/store/sqlstore"
	"github.com/jrsteele09/care-auth-server/token/refresh"
	"github.com/jrsteele09/care-auth-server/users"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	ctx   context.Context
	store *sqlstore.Store
	users *sqlstore.UserRepo
	now   time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "care.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	store := sqlstore.New(db)
	return &testFixture{
		ctx:   ctx,
		store: store,
		users: store.Users(),
		now:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *testFixture) createUser(t *testing.T, email, phone string, role users.Role) *users.User {
	t.Helper()
	u := &users.User{
		Email:        email,
		FullName:     "Test User",
		Phone:        phone,
		PasswordHash: "$2a$04$hash",
		Role:         role,
		Active:       true,
	}
	require.NoError(t, f.users.Create(f.ctx, u))
	return u
}

func TestUserRepo(t *testing.T) {
	t.Run("create and fetch by every key", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.createUser(t, "  Jane@Example.COM ", "+447700900123", users.RolePatient)
		require.NotEmpty(t, u.ID)
		require.Equal(t, "jane@example.com", u.Email)

		byEmail, err := f.users.GetByEmail(f.ctx, "JANE@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, byEmail.ID)
		require.Equal(t, users.RolePatient, byEmail.Role)
		require.True(t, byEmail.Active)
		require.False(t, byEmail.Verified)
		require.Nil(t, byEmail.LastLoginAt)

		byPhone, err := f.users.GetByPhone(f.ctx, "+447700900123")
		require.NoError(t, err)
		require.Equal(t, u.ID, byPhone.ID)

		byID, err := f.users.GetByID(f.ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, u.Email, byID.Email)
	})

	t.Run("missing user is not found", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.users.GetByEmail(f.ctx, "nobody@example.com")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
		_, err = f.users.GetByPhone(f.ctx, "")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("duplicate email and phone are distinguished", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createUser(t, "a@example.com", "+447700900001", users.RolePatient)

		err := f.users.Create(f.ctx, &users.User{Email: "A@example.com", PasswordHash: "x", Role: users.RolePatient})
		require.ErrorIs(t, err, apperrors.ErrDuplicateEmail)

		err = f.users.Create(f.ctx, &users.User{Email: "b@example.com", Phone: "+447700900001", PasswordHash: "x", Role: users.RolePatient})
		require.ErrorIs(t, err, apperrors.ErrDuplicatePhone)
	})

	t.Run("empty phones do not collide", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createUser(t, "a@example.com", "", users.RolePatient)
		f.createUser(t, "b@example.com", "", users.RoleClinician)
	})

	t.Run("update persists changes", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.createUser(t, "a@example.com", "", users.RolePatient)

		login := f.now
		u.Active = false
		u.Verified = true
		u.Role = users.RoleClinician
		u.LastLoginAt = &login
		u.UpdatedAt = f.now
		require.NoError(t, f.users.Update(f.ctx, u))

		got, err := f.users.GetByID(f.ctx, u.ID)
		require.NoError(t, err)
		require.False(t, got.Active)
		require.True(t, got.Verified)
		require.Equal(t, users.RoleClinician, got.Role)
		require.NotNil(t, got.LastLoginAt)
		require.True(t, login.Equal(*got.LastLoginAt))

		require.ErrorIs(t, f.users.Update(f.ctx, &users.User{ID: "missing", Email: "x@example.com", Role: users.RolePatient}), apperrors.ErrNotFound)
	})

	t.Run("record login touches only the login stamp", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.createUser(t, "a@example.com", "", users.RolePatient)

		stale := *u
		u.Active = false
		u.Role = users.RoleOrganization
		require.NoError(t, f.users.Update(f.ctx, u))

		require.NoError(t, f.users.RecordLogin(f.ctx, stale.ID, f.now))

		got, err := f.users.GetByID(f.ctx, u.ID)
		require.NoError(t, err)
		require.False(t, got.Active)
		require.Equal(t, users.RoleOrganization, got.Role)
		require.NotNil(t, got.LastLoginAt)
		require.True(t, f.now.Equal(*got.LastLoginAt))

		require.ErrorIs(t, f.users.RecordLogin(f.ctx, "missing", f.now), apperrors.ErrNotFound)
	})

	t.Run("delete cascades and reports missing", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.createUser(t, "a@example.com", "", users.RolePatient)
		require.NoError(t, f.store.Sessions().Create(f.ctx, &sessions.Session{
			ID: "s1", UserID: u.ID, Role: u.Role, CreatedAt: f.now, ExpiresAt: f.now.Add(time.Hour), LastSeenAt: f.now,
		}))

		require.NoError(t, f.users.Delete(f.ctx, u.ID))
		require.ErrorIs(t, f.users.Delete(f.ctx, u.ID), apperrors.ErrNotFound)

		_, err := f.store.Sessions().Get(f.ctx, "s1")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("list pages and counts roles", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createUser(t, "a@example.com", "", users.RolePatient)
		f.createUser(t, "b@example.com", "", users.RolePatient)
		f.createUser(t, "c@example.com", "", users.RoleOrganization)

		page, err := f.users.List(f.ctx, 1, 1)
		require.NoError(t, err)
		require.Equal(t, 3, page.Total)
		require.Len(t, page.Users, 1)

		all, err := f.users.List(f.ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, all.Users, 3)

		n, err := f.users.CountByRole(f.ctx, users.RolePatient)
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})
}

func (f *testFixture) storedToken(userID, id, family string) *refresh.StoredRefreshToken {
	return &refresh.StoredRefreshToken{
		ID:        id,
		TokenHash: "hash-" + id,
		UserID:    userID,
		FamilyID:  family,
		IssuedAt:  f.now,
		ExpiresAt: f.now.Add(24 * time.Hour),
	}
}

func TestRefreshTokenRepo(t *testing.T) {
	t.Run("create and get by hash", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.createUser(t, "a@example.com", "", users.RolePatient)
		repo := f.store.RefreshTokens()
		require.NoError(t, repo.Create(f.ctx, f.storedToken(u.ID, "t1", "fam")))

		got, err := repo.GetByHash(f.ctx, "hash-t1")
		require.NoError(t, err)
		require.Equal(t, "fam", got.FamilyID)
		require.Nil(t, got.RevokedAt)
		require.True(t, f.now.Add(24*time.Hour).Equal(got.ExpiresAt))

		_, err = repo.GetByHash(f.ctx, "nope")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("revoke is compare and set", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.createUser(t, "a@example.com", "", users.RolePatient)
		repo := f.store.RefreshTokens()
		require.NoError(t, repo.Create(f.ctx, f.storedToken(u.ID, "t1", "fam")))

		ok, err := repo.Revoke(f.ctx, "t1", f.now)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.Revoke(f.ctx, "t1", f.now)
		require.NoError(t, err)
		require.False(t, ok)

		_, err = repo.Revoke(f.ctx, "missing", f.now)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("rotate links and conflicts once revoked", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.createUser(t, "a@example.com", "", users.RolePatient)
		repo := f.store.RefreshTokens()
		require.NoError(t, repo.Create(f.ctx, f.storedToken(u.ID, "t1", "fam")))

		require.NoError(t, repo.Rotate(f.ctx, "t1", f.now, f.storedToken(u.ID, "t2", "fam")))
		old, err := repo.GetByHash(f.ctx, "hash-t1")
		require.NoError(t, err)
		require.True(t, old.Revoked())
		require.Equal(t, "t2", old.ReplacedByID)

		err = repo.Rotate(f.ctx, "t1", f.now, f.storedToken(u.ID, "t3", "fam"))
		require.ErrorIs(t, err, apperrors.ErrConflict)
		_, err = repo.GetByHash(f.ctx, "hash-t3")
		require.ErrorIs(t, err, apperrors.ErrNotFound, "losing rotation must not insert")
	})

	t.Run("concurrent revoke has a single winner", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.createUser(t, "a@example.com", "", users.RolePatient)
		repo := f.store.RefreshTokens()
		require.NoError(t, repo.Create(f.ctx, f.storedToken(u.ID, "t1", "fam")))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
			errs []error
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.Revoke(f.ctx, "t1", f.now)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
				}
				if ok {
					wins++
				}
			}()
		}
		wg.Wait()
		require.Empty(t, errs)
		require.Equal(t, 1, wins)
	})

	t.Run("revoke family and user", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.createUser(t, "a@example.com", "", users.RolePatient)
		repo := f.store.RefreshTokens()
		require.NoError(t, repo.Create(f.ctx, f.storedToken(u.ID, "t1", "fam-a")))
		require.NoError(t, repo.Create(f.ctx, f.storedToken(u.ID, "t2", "fam-b")))
		require.NoError(t, repo.Create(f.ctx, f.storedToken(u.ID, "t3", "fam-b")))

		require.NoError(t, repo.RevokeFamily(f.ctx, "fam-b", f.now))
		for hash, revoked := range map[string]bool{"hash-t1": false, "hash-t2": true, "hash-t3": true} {
			got, err := repo.GetByHash(f.ctx, hash)
			require.NoError(t, err)
			require.Equal(t, revoked, got.Revoked(), hash)
		}

		require.NoError(t, repo.RevokeAllForUser(f.ctx, u.ID, f.now))
		got, err := repo.GetByHash(f.ctx, "hash-t1")
		require.NoError(t, err)
		require.True(t, got.Revoked())
	})
}

func TestSessionRepo(t *testing.T) {
	f := setupTestFixture(t)
	u := f.createUser(t, "a@example.com", "", users.RoleClinician)
	repo := f.store.Sessions()

	newSession := func(id string, ttl time.Duration) *sessions.Session {
		return &sessions.Session{ID: id, UserID: u.ID, Role: u.Role, CreatedAt: f.now, ExpiresAt: f.now.Add(ttl), LastSeenAt: f.now}
	}

	t.Run("create get touch", func(t *testing.T) {
		require.NoError(t, repo.Create(f.ctx, newSession("s1", time.Hour)))

		got, err := repo.Get(f.ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, users.RoleClinician, got.Role)

		later := f.now.Add(5 * time.Minute)
		require.NoError(t, repo.Touch(f.ctx, "s1", later))
		got, err = repo.Get(f.ctx, "s1")
		require.NoError(t, err)
		require.True(t, later.Equal(got.LastSeenAt))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, repo.Delete(f.ctx, "s1"))
		require.NoError(t, repo.Delete(f.ctx, "s1"))
		_, err := repo.Get(f.ctx, "s1")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("delete all for user and expired sweep", func(t *testing.T) {
		require.NoError(t, repo.Create(f.ctx, newSession("s2", time.Hour)))
		require.NoError(t, repo.Create(f.ctx, newSession("s3", -time.Minute)))

		n, err := repo.DeleteExpired(f.ctx, f.now)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		require.NoError(t, repo.DeleteAllForUser(f.ctx, u.ID))
		_, err = repo.Get(f.ctx, "s2")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

package fakeuserrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/internal/ids"
	"github.com/jrsteele09/care-auth-server/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // email to user id
	phoneIds map[string]string // phone to user id
	lock     sync.RWMutex

	// Err, when set, is returned by every call. Used to simulate an unreachable store.
	Err error
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
		phoneIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Create(ctx context.Context, user *users.User) error {
	if err := ur.check(ctx); err != nil {
		return err
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	email := users.NormalizeEmail(user.Email)
	if _, ok := ur.emailIds[email]; ok {
		return apperrors.ErrDuplicateEmail
	}
	if user.Phone != "" {
		if _, ok := ur.phoneIds[user.Phone]; ok {
			return apperrors.ErrDuplicatePhone
		}
	}

	if user.ID == "" {
		user.ID = ids.New()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Email = email

	ur.users[user.ID] = user.Clone()
	ur.emailIds[email] = user.ID
	if user.Phone != "" {
		ur.phoneIds[user.Phone] = user.ID
	}
	return nil
}

func (ur *FakeUserRepo) Update(ctx context.Context, user *users.User) error {
	if err := ur.check(ctx); err != nil {
		return err
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	existing, ok := ur.users[user.ID]
	if !ok {
		return apperrors.ErrNotFound
	}

	email := users.NormalizeEmail(user.Email)
	if id, ok := ur.emailIds[email]; ok && id != user.ID {
		return apperrors.ErrDuplicateEmail
	}
	if user.Phone != "" {
		if id, ok := ur.phoneIds[user.Phone]; ok && id != user.ID {
			return apperrors.ErrDuplicatePhone
		}
	}

	delete(ur.emailIds, existing.Email)
	delete(ur.phoneIds, existing.Phone)

	user.Email = email
	user.UpdatedAt = time.Now().UTC()
	ur.users[user.ID] = user.Clone()
	ur.emailIds[email] = user.ID
	if user.Phone != "" {
		ur.phoneIds[user.Phone] = user.ID
	}
	return nil
}

func (ur *FakeUserRepo) RecordLogin(ctx context.Context, id string, at time.Time) error {
	if err := ur.check(ctx); err != nil {
		return err
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	at = at.UTC()
	user.LastLoginAt = &at
	return nil
}

func (ur *FakeUserRepo) Delete(ctx context.Context, id string) error {
	if err := ur.check(ctx); err != nil {
		return err
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	delete(ur.emailIds, user.Email)
	delete(ur.phoneIds, user.Phone)
	delete(ur.users, id)
	return nil
}

func (ur *FakeUserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	if err := ur.check(ctx); err != nil {
		return nil, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[users.NormalizeEmail(email)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return ur.users[id].Clone(), nil
}

func (ur *FakeUserRepo) GetByPhone(ctx context.Context, phone string) (*users.User, error) {
	if err := ur.check(ctx); err != nil {
		return nil, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.phoneIds[phone]
	if !ok || phone == "" {
		return nil, apperrors.ErrNotFound
	}
	return ur.users[id].Clone(), nil
}

func (ur *FakeUserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	if err := ur.check(ctx); err != nil {
		return nil, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return user.Clone(), nil
}

func (ur *FakeUserRepo) List(ctx context.Context, offset, limit int) (users.UsersListResponse, error) {
	if err := ur.check(ctx); err != nil {
		return users.UsersListResponse{}, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]*users.User, 0, len(ur.users))
	for _, v := range ur.users {
		userList = append(userList, v.Clone())
	}

	sort.Slice(userList, func(i, j int) bool {
		return userList[i].ID < userList[j].ID
	})

	resp := users.UsersListResponse{Total: len(userList), Offset: offset, Limit: limit}
	if offset >= len(userList) {
		resp.Users = []*users.User{}
		return resp, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(userList) {
		end = len(userList)
	}
	resp.Users = userList[offset:end]
	return resp, nil
}

func (ur *FakeUserRepo) CountByRole(ctx context.Context, role users.Role) (int, error) {
	if err := ur.check(ctx); err != nil {
		return 0, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	count := 0
	for _, u := range ur.users {
		if u.Role == role {
			count++
		}
	}
	return count, nil
}

func (ur *FakeUserRepo) check(ctx context.Context) error {
	if ur.Err != nil {
		return ur.Err
	}
	return ctx.Err()
}

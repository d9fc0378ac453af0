package refreshrepofake

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

type FakeRefreshTokenRepo struct {
	tokens map[string]*refresh.StoredRefreshToken // id -> record
	hashes map[string]string                      // token hash -> id
	lock   sync.RWMutex

	// Err, when set, is returned by every call to simulate an unavailable store.
	Err error
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		tokens: make(map[string]*refresh.StoredRefreshToken),
		hashes: make(map[string]string),
	}
}

func (tr *FakeRefreshTokenRepo) Create(ctx context.Context, token *refresh.StoredRefreshToken) error {
	if err := tr.check(ctx); err != nil {
		return err
	}
	tr.lock.Lock()
	defer tr.lock.Unlock()
	tr.insert(token)
	return nil
}

func (tr *FakeRefreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*refresh.StoredRefreshToken, error) {
	if err := tr.check(ctx); err != nil {
		return nil, err
	}
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	id, ok := tr.hashes[tokenHash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(tr.tokens[id]), nil
}

func (tr *FakeRefreshTokenRepo) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	if err := tr.check(ctx); err != nil {
		return false, err
	}
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[id]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if rt.RevokedAt != nil {
		return false, nil
	}
	rt.RevokedAt = &at
	return true, nil
}

func (tr *FakeRefreshTokenRepo) Rotate(ctx context.Context, oldID string, at time.Time, next *refresh.StoredRefreshToken) error {
	if err := tr.check(ctx); err != nil {
		return err
	}
	tr.lock.Lock()
	defer tr.lock.Unlock()

	old, ok := tr.tokens[oldID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if old.RevokedAt != nil {
		return apperrors.ErrConflict
	}
	old.RevokedAt = &at
	old.ReplacedByID = next.ID
	tr.insert(next)
	return nil
}

func (tr *FakeRefreshTokenRepo) RevokeFamily(ctx context.Context, familyID string, at time.Time) error {
	return tr.revokeWhere(ctx, at, func(rt *refresh.StoredRefreshToken) bool { return rt.FamilyID == familyID })
}

func (tr *FakeRefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	return tr.revokeWhere(ctx, at, func(rt *refresh.StoredRefreshToken) bool { return rt.UserID == userID })
}

func (tr *FakeRefreshTokenRepo) revokeWhere(ctx context.Context, at time.Time, match func(*refresh.StoredRefreshToken) bool) error {
	if err := tr.check(ctx); err != nil {
		return err
	}
	tr.lock.Lock()
	defer tr.lock.Unlock()

	for _, rt := range tr.tokens {
		if match(rt) && rt.RevokedAt == nil {
			revokedAt := at
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

// All returns copies of every stored record.
func (tr *FakeRefreshTokenRepo) All() []*refresh.StoredRefreshToken {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	out := make([]*refresh.StoredRefreshToken, 0, len(tr.tokens))
	for _, rt := range tr.tokens {
		out = append(out, clone(rt))
	}
	return out
}

func (tr *FakeRefreshTokenRepo) insert(token *refresh.StoredRefreshToken) {
	c := clone(token)
	tr.tokens[c.ID] = c
	tr.hashes[c.TokenHash] = c.ID
}

func clone(rt *refresh.StoredRefreshToken) *refresh.StoredRefreshToken {
	c := *rt
	if rt.RevokedAt != nil {
		t := *rt.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

func (tr *FakeRefreshTokenRepo) check(ctx context.Context) error {
	if tr.Err != nil {
		return tr.Err
	}
	return ctx.Err()
}

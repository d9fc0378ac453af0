package fakesessionrepo

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[string]*sessions.Session
	lock     sync.RWMutex

	// Err, when set, is returned by every call to simulate an unavailable store.
	Err error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*sessions.Session),
	}
}

func (sr *FakeSessionRepo) Create(ctx context.Context, session *sessions.Session) error {
	if err := sr.check(ctx); err != nil {
		return err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	c := *session
	sr.sessions[session.ID] = &c
	return nil
}

func (sr *FakeSessionRepo) Get(ctx context.Context, id string) (*sessions.Session, error) {
	if err := sr.check(ctx); err != nil {
		return nil, err
	}
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	s, ok := sr.sessions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (sr *FakeSessionRepo) Touch(ctx context.Context, id string, at time.Time) error {
	if err := sr.check(ctx); err != nil {
		return err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if s, ok := sr.sessions[id]; ok {
		s.LastSeenAt = at
	}
	return nil
}

func (sr *FakeSessionRepo) Delete(ctx context.Context, id string) error {
	if err := sr.check(ctx); err != nil {
		return err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	delete(sr.sessions, id)
	return nil
}

func (sr *FakeSessionRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	if err := sr.check(ctx); err != nil {
		return err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	for id, s := range sr.sessions {
		if s.UserID == userID {
			delete(sr.sessions, id)
		}
	}
	return nil
}

// Count returns the number of stored sessions.
func (sr *FakeSessionRepo) Count() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return len(sr.sessions)
}

func (sr *FakeSessionRepo) check(ctx context.Context) error {
	if sr.Err != nil {
		return sr.Err
	}
	return ctx.Err()
}

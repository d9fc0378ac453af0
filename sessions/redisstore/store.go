// Package redisstore keeps browser sessions in Redis. Each session is a JSON
// value whose TTL matches its expiry, and each user has a set of session ids
// so every session of a user can be dropped at once.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/sessions"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "care:"

var _ sessions.Repo = (*Store)(nil)

type Store struct {
	client  redis.UniversalClient
	prefix  string
	nowFunc func() time.Time
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func New(client redis.UniversalClient, options ...Option) *Store {
	s := &Store{
		client:  client,
		prefix:  defaultPrefix,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Unavailable(fmt.Errorf("redis ping %s: %w", addr, err))
	}
	return client, nil
}

func (s *Store) Create(ctx context.Context, session *sessions.Session) error {
	ttl := session.ExpiresAt.Sub(s.nowFunc())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	userKey := s.userKey(session.UserID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(session.ID), data, ttl)
		pipe.SAdd(ctx, userKey, session.ID)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	return mapError(err)
}

func (s *Store) Get(ctx context.Context, id string) (*sessions.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		return nil, mapError(err)
	}
	var session sessions.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &session, nil
}

func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	session.LastSeenAt = at
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return mapError(s.client.SetArgs(ctx, s.sessionKey(id), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err())
}

func (s *Store) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(id))
		pipe.SRem(ctx, s.userKey(session.UserID), id)
		return nil
	})
	return mapError(err)
}

func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)
	ids, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return mapError(err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
	}
	keys = append(keys, userKey)
	return mapError(s.client.Del(ctx, keys...).Err())
}

func (s *Store) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "user_sessions:" + userID
}

// mapError turns redis.Nil into ErrNotFound and any other client failure into
// ErrStoreUnavailable.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return apperrors.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.StoreError(err)
	default:
		return apperrors.Unavailable(err)
	}
}

// Package app assembles the stores, token manager, session manager and auth
// service from configuration. Both binaries start from Build.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/care-auth-server/auth"
	"github.com/jrsteele09/care-auth-server/guard"
	"github.com/jrsteele09/care-auth-server/internal/config"
	"github.com/jrsteele09/care-auth-server/internal/database"
	"github.com/jrsteele09/care-auth-server/sessions"
	"github.com/jrsteele09/care-auth-server/sessions/redisstore"
	fakesessionrepo "github.com/jrsteele09/care-auth-server/sessions/repofake"
	"github.com/jrsteele09/care-auth-server/store/sqlstore"
	"github.com/jrsteele09/care-auth-server/token"
	"github.com/jrsteele09/care-auth-server/token/refresh"
	refreshrepofake "github.com/jrsteele09/care-auth-server/token/refresh/repofake"
	"github.com/jrsteele09/care-auth-server/users"
	fakeuserrepo "github.com/jrsteele09/care-auth-server/users/repofake"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// HealthChecker is satisfied by the SQL database and the Redis adapter.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type App struct {
	Config config.Config
	Auth   *auth.Service
	DB     *database.DB // nil for the memory driver
	Health []HealthChecker

	sweeper expiredSessionSweeper
	closers []func() error
}

type expiredSessionSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type repos struct {
	users    users.Repo
	refresh  refresh.Repo
	sessions sessions.Repo
}

// Build opens storage, runs migrations for SQL drivers and wires the services.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	r, err := a.openStores(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	signer, err := token.NewSignerFromConfig(cfg)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("creating token signer: %w", err)
	}

	tokens := token.New(signer, r.refresh, r.users, cfg, token.WithStoreTimeout(cfg.GetStoreTimeout()))
	sessionManager := sessions.NewManager(r.sessions, cfg.GetMaxSessionAge(), sessions.WithStoreTimeout(cfg.GetStoreTimeout()))

	a.Auth, err = auth.NewService(r.users, tokens, sessionManager, guard.New(), auth.WithStoreTimeout(cfg.GetStoreTimeout()))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context) (repos, error) {
	var r repos
	cfg := a.Config

	switch cfg.GetStorageDriver() {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory storage; all accounts are lost on restart")
		r.users = fakeuserrepo.NewFakeUserRepo()
		r.refresh = refreshrepofake.NewFakeRefreshTokenRepo()
		r.sessions = fakesessionrepo.NewFakeSessionRepo()
	default:
		db, err := database.Open(ctx, cfg)
		if err != nil {
			return r, fmt.Errorf("opening %s database: %w", cfg.GetStorageDriver(), err)
		}
		a.DB = db
		a.Health = append(a.Health, db)
		a.closers = append(a.closers, db.Close)

		if err := db.Migrate(ctx); err != nil {
			return r, fmt.Errorf("migrating database: %w", err)
		}

		store := sqlstore.New(db)
		r.users = store.Users()
		r.refresh = store.RefreshTokens()
		r.sessions = store.Sessions()
		a.sweeper = store.Sessions()
		log.Info().Str("driver", cfg.GetStorageDriver()).Msg("database ready")
	}

	if cfg.GetSessionStore() == config.SessionStoreRedis {
		client, err := redisstore.Dial(ctx, cfg.GetRedisAddr(), cfg.GetRedisPassword(), cfg.GetRedisDB())
		if err != nil {
			return r, fmt.Errorf("connecting to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.Health = append(a.Health, redisHealth{client: client})
		r.sessions = redisstore.New(client)
		a.sweeper = nil
		log.Info().Str("addr", cfg.GetRedisAddr()).Msg("sessions stored in redis")
	}
	return r, nil
}

// PruneExpiredSessions deletes SQL session rows that expired before now.
// Redis expires keys itself and memory storage does not persist, so both
// report zero.
func (a *App) PruneExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	if a.sweeper == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.Config.GetStoreTimeout())
	defer cancel()
	return a.sweeper.DeleteExpired(ctx, now)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type redisHealth struct {
	client *redis.Client
}

func (h redisHealth) HealthCheck(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/care-auth-server/internal/app"
	"github.com/jrsteele09/care-auth-server/internal/config"
	"github.com/jrsteele09/care-auth-server/internal/logging"
	"github.com/jrsteele09/care-auth-server/server"
	"github.com/rs/zerolog/log"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.FromEnvironment()
	if err != nil {
		logging.Setup("PROD", "error")
		log.Fatal().Err(err).Msg("loading configuration")
	}
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	ctx := context.Background()
	a, err := app.Build(ctx, c)
	if err != nil {
		return fmt.Errorf("app.Build: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("closing stores")
		}
	}()

	if err := seedAccounts(ctx, c, a); err != nil {
		return err
	}

	options := make([]server.Option, 0, len(a.Health))
	for _, h := range a.Health {
		options = append(options, server.WithHealthCheck(h))
	}
	handler, err := server.New(c, a.Auth, options...)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(srv) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

// seedAccounts creates the first Organization account when none exists and,
// in DEV, the fixed test accounts.
func seedAccounts(ctx context.Context, c config.Config, a *app.App) error {
	if email := c.GetBootstrapAdminEmail(); email != "" {
		if err := bootstrap(ctx, email, a); err != nil {
			return err
		}
	}

	if c.GetEnv() != "DEV" {
		return nil
	}
	seeded, err := a.Auth.SeedTestUsers(ctx)
	if err != nil {
		return fmt.Errorf("seeding test users: %w", err)
	}
	for _, tu := range seeded {
		log.Info().Str("email", tu.Email).Str("password", tu.Password).Str("role", string(tu.Role)).Msg("test account")
	}
	return nil
}

func bootstrap(ctx context.Context, email string, a *app.App) error {
	password, created, err := a.Auth.Bootstrap(ctx, email)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if created {
		log.Warn().
			Str("email", email).
			Str("password", password).
			Msg("created bootstrap organization account; change this password")
	}
	return nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

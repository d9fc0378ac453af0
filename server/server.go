package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/netip"
	"strings"

	"github.com/jrsteele09/care-auth-server/auth"
	"github.com/jrsteele09/care-auth-server/guard"
	"github.com/jrsteele09/care-auth-server/internal/config"
	"github.com/jrsteele09/care-auth-server/internal/metrics"
	"github.com/rs/zerolog/log"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	auth    *auth.Service
	guard   *guard.Guard
	health  []HealthChecker
	limiter *ipRateLimiter

	trustedProxies []netip.Prefix

	errorTmpl *template.Template
}

type Option func(*Server)

// WithHealthCheck adds a dependency probed by /healthz.
func WithHealthCheck(h HealthChecker) Option {
	return func(s *Server) {
		if h != nil {
			s.health = append(s.health, h)
		}
	}
}

func New(config config.Config, authService *auth.Service, options ...Option) (*Server, error) {
	if authService == nil {
		return nil, fmt.Errorf("[Server New] auth service is required")
	}

	s := &Server{
		env:    config.GetEnv(),
		mux:    http.NewServeMux(),
		config: config,
		auth:   authService,
		guard:  authService.Guard(),

		errorTmpl: mustParseTemplate("error.html"),

		trustedProxies: config.GetTrustedProxies(),
	}
	for _, opt := range options {
		opt(s)
	}
	if config.GetEnableRateLimiting() {
		s.limiter = newIPRateLimiter(config.GetRateLimitPerSecond(), config.GetRateLimitBurst())
	}

	metrics.Init()
	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, metrics.Instrument(pattern, handler))
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.RegisterRouteHandler(pattern, http.HandlerFunc(handler))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}

// getScheme determines the scheme (http/https), honouring a TLS-terminating proxy.
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

package server

import (
	"net/http"

	"github.com/jrsteele09/care-auth-server/internal/metrics"
	"github.com/jrsteele09/care-auth-server/users"
)

func (s *Server) initRoutes() {
	// Browser surface
	s.RegisterRouteHandler("GET "+RouteHome, ChainMiddleware(s.HomeHandler(), s.HTMLMiddleWare(s.LoadSession)...))
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleWare(s.LoadSession)...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleWare(s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteSignup, ChainMiddleware(s.SignupGetHandler(), s.HTMLMiddleWare(s.LoadSession)...))
	s.RegisterRouteHandler("POST "+RouteSignup, ChainMiddleware(s.SignupPostHandler(), s.HTMLMiddleWare(s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))

	// Dashboards
	s.RegisterRouteHandler("GET "+RouteDashboard, ChainMiddleware(s.HomeHandler(), s.HTMLMiddleWare(s.LoadSession)...))
	s.RegisterRouteHandler("GET "+RouteDashboardPatient, ChainMiddleware(s.DashboardHandler(), s.HTMLMiddleWare(s.LoadSession, s.RequireRole(users.RolePatient))...))
	s.RegisterRouteHandler("GET "+RouteDashboardClinician, ChainMiddleware(s.DashboardHandler(), s.HTMLMiddleWare(s.LoadSession, s.RequireRole(users.RoleClinician))...))
	s.RegisterRouteHandler("GET "+RouteDashboardOrganization, ChainMiddleware(s.DashboardHandler(), s.HTMLMiddleWare(s.LoadSession, s.RequireRole(users.RoleOrganization))...))

	// JSON API
	s.RegisterRouteHandler("POST "+RouteAPISignup, ChainMiddleware(s.APISignupHandler(), s.APIMiddleware(s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAPILogin, ChainMiddleware(s.APILoginHandler(), s.APIMiddleware(s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAPIRefresh, ChainMiddleware(s.APIRefreshHandler(), s.APIMiddleware(s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAPILogout, ChainMiddleware(s.APILogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPIMe, ChainMiddleware(s.APIMeHandler(), s.APIMiddleware(s.RequireBearer)...))
	s.RegisterRouteHandler("GET "+RouteAPIDashboard, ChainMiddleware(s.APIDashboardHandler(), s.APIMiddleware(s.RequireBearer)...))
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(preflightHandler, s.APIMiddleware()...))

	// Ops
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.RecoverMiddleware))
	s.RegisterRouteHandler("GET "+RouteMetrics, metrics.Handler())
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))
}

// preflightHandler only gives the mux an OPTIONS route; CorsMiddleware answers preflights itself.
func preflightHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

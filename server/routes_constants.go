package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Browser surface
	RouteHome      = "/{$}"
	RouteLogin     = "/login"
	RouteSignup    = "/signup"
	RouteLogout    = "/logout"
	RouteDashboard = "/dashboard/{$}"

	// Role dashboards (subtrees)
	RouteDashboardPatient      = "/dashboard/patient/"
	RouteDashboardClinician    = "/dashboard/clinician/"
	RouteDashboardOrganization = "/dashboard/organization/"

	// JSON API
	RouteAPISignup    = "/api/auth/signup"
	RouteAPILogin     = "/api/auth/login"
	RouteAPIRefresh   = "/api/auth/refresh"
	RouteAPILogout    = "/api/auth/logout"
	RouteAPIMe        = "/api/auth/me"
	RouteAPIDashboard = "/api/dashboard/{role}"

	// Ops
	RouteHealth        = "/healthz"
	RouteMetrics       = "/metrics"
	RouteWellKnownJWKS = "/.well-known/jwks.json"
)

package server

import (
	"net/http"

	"github.com/jrsteele09/care-auth-server/auth"
	"github.com/jrsteele09/care-auth-server/guard"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
)

type DashboardPageData struct {
	AppName string
	Profile *auth.Profile
}

// DashboardHandler renders the role dashboard. RequireRole has already
// checked that the principal belongs here.
func (s *Server) DashboardHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("dashboard.html")
	return func(w http.ResponseWriter, r *http.Request) {
		p := guardPrincipal(r)
		profile, err := s.auth.Profile(r.Context(), p.UserID)
		if err != nil {
			if apperrors.IsRetryable(err) {
				s.renderUnavailable(w, r)
				return
			}
			s.clearSessionCookie(w, r)
			redirectSuccess(w, r, s.guard.LoginPath())
			return
		}
		renderHTML(w, tmpl, http.StatusOK, DashboardPageData{
			AppName: s.config.GetAppName(),
			Profile: profile,
		})
	}
}

func guardPrincipal(r *http.Request) *guard.Principal {
	return guard.FromContext(r.Context())
}

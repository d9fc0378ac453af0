package server

import (
	"net/http"

	"github.com/jrsteele09/care-auth-server/guard"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/internal/metrics"
	"github.com/rs/zerolog/log"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName string
	Error   string
	Email   string // Preserve email on error
	Next    string // Local path to return to after sign-in
}

// ErrorPageData is the model for error.html.
type ErrorPageData struct {
	AppName string
	Title   string
	Message string
}

// HomeHandler sends callers to their own dashboard, or to login.
func (s *Server) HomeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirectSuccess(w, r, s.guard.Home(guard.FromContext(r.Context())))
	}
}

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	loginTmpl := mustParseTemplate("login.html")

	return func(w http.ResponseWriter, r *http.Request) {
		if p := guard.FromContext(r.Context()); p != nil {
			redirectSuccess(w, r, s.guard.Home(p))
			return
		}

		next := r.URL.Query().Get("next")
		if !guard.SafeNext(next) {
			next = ""
		}
		renderHTML(w, loginTmpl, http.StatusOK, LoginPageData{
			AppName: s.config.GetAppName(),
			Error:   r.URL.Query().Get("error"),
			Email:   r.URL.Query().Get("email"),
			Next:    next,
		})
	}
}

// LoginSubmissionHandler processes the login form submission (POST /login)
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	loginTmpl := mustParseTemplate("login.html")

	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		email := r.FormValue("email")
		password := r.FormValue("password")
		next := r.FormValue("next")
		if !guard.SafeNext(next) {
			next = ""
		}

		user, cookie, err := s.auth.BrowserLogin(r.Context(), email, password, s.sessionCookie(r))
		if err != nil {
			if apperrors.IsRetryable(err) {
				metrics.AuthEvent("browser_login", metrics.OutcomeUnavailable)
				s.renderUnavailable(w, r)
				return
			}
			metrics.AuthEvent("browser_login", metrics.OutcomeFailure)
			if !apperrors.Is(err, apperrors.ErrInvalidCredentials) {
				s.renderInternalError(w, r, err)
				return
			}
			log.Info().Err(err).Msg("browser login rejected")
			renderHTML(w, loginTmpl, http.StatusUnauthorized, LoginPageData{
				AppName: s.config.GetAppName(),
				Error:   apperrors.InvalidCredentialsMessage,
				Email:   email,
				Next:    next,
			})
			return
		}

		metrics.AuthEvent("browser_login", metrics.OutcomeSuccess)
		s.setSessionCookie(w, r, cookie)

		target := s.guard.DashboardFor(user.Role)
		if next != "" {
			target = next
		}
		redirectSuccess(w, r, target)
	}
}

// LogoutHandler ends the browser session (GET or POST /logout).
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie := s.sessionCookie(r); cookie != "" {
			if err := s.auth.BrowserLogout(r.Context(), cookie); err != nil {
				metrics.AuthEvent("browser_logout", metrics.OutcomeUnavailable)
				s.renderUnavailable(w, r)
				return
			}
		}
		metrics.AuthEvent("browser_logout", metrics.OutcomeSuccess)
		s.clearSessionCookie(w, r)
		redirectSuccess(w, r, s.guard.LoginPath())
	}
}

// renderUnavailable answers 503 with Retry-After in the caller's format.
func (s *Server) renderUnavailable(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		writeServiceError(w, apperrors.ErrStoreUnavailable)
		return
	}
	w.Header().Set("Retry-After", retryAfterSeconds)
	renderHTML(w, s.errorTmpl, http.StatusServiceUnavailable, ErrorPageData{
		AppName: s.config.GetAppName(),
		Title:   "Temporarily unavailable",
		Message: "We could not reach our records just now. Please try again in a few seconds.",
	})
}

// renderInternalError logs err and answers 500 without exposing it.
func (s *Server) renderInternalError(w http.ResponseWriter, r *http.Request, err error) {
	log.Err(err).Str("path", r.URL.Path).Msg("unhandled service error")
	if wantsJSON(r) {
		writeJSONError(w, "internal_error", apperrors.PublicMessage(err), http.StatusInternalServerError)
		return
	}
	renderHTML(w, s.errorTmpl, http.StatusInternalServerError, ErrorPageData{
		AppName: s.config.GetAppName(),
		Title:   "Something went wrong",
		Message: "We could not complete your request. Please try again later.",
	})
}

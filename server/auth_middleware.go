package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/care-auth-server/guard"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/internal/metrics"
	"github.com/jrsteele09/care-auth-server/users"
	"github.com/rs/zerolog/log"
)

// LoadSession resolves the session cookie into a principal on the request
// context. Anonymous requests pass through with no principal; a dead cookie
// is cleared.
func (s *Server) LoadSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie := s.sessionCookie(r)
		if cookie == "" {
			next(w, r)
			return
		}

		principal, err := s.auth.ResolveBrowser(r.Context(), cookie)
		switch {
		case err == nil:
			r = r.WithContext(guard.WithPrincipal(r.Context(), principal))
		case apperrors.IsRetryable(err):
			s.renderUnavailable(w, r)
			return
		default:
			s.clearSessionCookie(w, r)
		}
		next(w, r)
	}
}

// RequireRole lets through only principals holding role. Must follow LoadSession.
func (s *Server) RequireRole(role users.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			principal := guard.FromContext(r.Context())
			decision := s.guard.AuthorizePath(principal, role, r.URL.RequestURI())
			metrics.GuardDecision(string(role), decision.Allowed)
			if !decision.Allowed {
				redirectSuccess(w, r, decision.RedirectTo)
				return
			}
			next(w, r)
		}
	}
}

// RequireBearer validates the Authorization: Bearer access token.
func (s *Server) RequireBearer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="care"`)
			writeJSONError(w, "invalid_token", apperrors.ErrInvalidToken.Error(), http.StatusUnauthorized)
			return
		}

		principal, err := s.auth.ResolveBearer(r.Context(), raw)
		if err != nil {
			if !apperrors.IsRetryable(err) {
				log.Debug().Err(err).Msg("bearer token rejected")
				w.Header().Set("WWW-Authenticate", `Bearer realm="care", error="invalid_token"`)
			}
			writeServiceError(w, err)
			return
		}

		next(w, r.WithContext(guard.WithPrincipal(r.Context(), principal)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

package server

import (
	"net/http"

	"github.com/jrsteele09/care-auth-server/auth"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/internal/metrics"
	"github.com/jrsteele09/care-auth-server/token"
	"github.com/jrsteele09/care-auth-server/users"
	"github.com/rs/zerolog/log"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type authResponse struct {
	User   *auth.Profile    `json:"user"`
	Tokens *token.TokenPair `json:"tokens"`
}

type tokensResponse struct {
	Tokens *token.TokenPair `json:"tokens"`
}

// APISignupHandler handles POST /api/auth/signup
func (s *Server) APISignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.RegistrationRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		user, pair, err := s.auth.SignupWithTokens(r.Context(), req)
		if err != nil {
			metrics.AuthEvent("api_signup", outcomeOf(err))
			writeServiceError(w, err)
			return
		}

		metrics.AuthEvent("api_signup", metrics.OutcomeSuccess)
		writeJSON(w, http.StatusCreated, authResponse{User: s.auth.ProfileOf(user), Tokens: pair})
	}
}

// APILoginHandler handles POST /api/auth/login
func (s *Server) APILoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		user, pair, err := s.auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			metrics.AuthEvent("api_login", outcomeOf(err))
			log.Info().Err(err).Msg("api login rejected")
			writeServiceError(w, err)
			return
		}

		metrics.AuthEvent("api_login", metrics.OutcomeSuccess)
		writeJSON(w, http.StatusOK, authResponse{User: s.auth.ProfileOf(user), Tokens: pair})
	}
}

// APIRefreshHandler handles POST /api/auth/refresh
func (s *Server) APIRefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		pair, err := s.auth.Refresh(r.Context(), req.Refresh)
		if err != nil {
			metrics.AuthEvent("refresh", outcomeOf(err))
			writeServiceError(w, err)
			return
		}

		metrics.AuthEvent("refresh", metrics.OutcomeSuccess)
		writeJSON(w, http.StatusOK, tokensResponse{Tokens: pair})
	}
}

// APILogoutHandler handles POST /api/auth/logout. Unknown or already
// revoked tokens still succeed.
func (s *Server) APILogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := s.auth.Logout(r.Context(), req.Refresh); err != nil {
			metrics.AuthEvent("api_logout", outcomeOf(err))
			writeServiceError(w, err)
			return
		}

		metrics.AuthEvent("api_logout", metrics.OutcomeSuccess)
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
	}
}

// APIMeHandler handles GET /api/auth/me
func (s *Server) APIMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := s.auth.Profile(r.Context(), guardPrincipal(r).UserID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				err = apperrors.ErrTokenRevoked
			}
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

// APIDashboardHandler mirrors the role guard for bearer callers.
func (s *Server) APIDashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := users.Role(r.PathValue("role"))
		decision := s.guard.Authorize(guardPrincipal(r), role)
		metrics.GuardDecision(string(role), decision.Allowed)

		if !decision.Allowed {
			writeJSON(w, http.StatusForbidden, decision)
			return
		}
		writeJSON(w, http.StatusOK, decision)
	}
}

func outcomeOf(err error) string {
	if apperrors.IsRetryable(err) {
		return metrics.OutcomeUnavailable
	}
	return metrics.OutcomeFailure
}

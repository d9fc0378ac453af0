package server

import (
	"context"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/rs/zerolog/log"
)

// HealthHandler reports 200 while every registered dependency answers.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.GetStoreTimeout())
		defer cancel()

		for _, h := range s.health {
			if err := h.HealthCheck(ctx); err != nil {
				log.Warn().Err(err).Msg("health check failed")
				w.Header().Set("Retry-After", retryAfterSeconds)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens. Servers signing
// with a shared secret have no public keys and answer 404.
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.auth.Tokens().JWKS()
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				writeJSONError(w, "not_found", "no public signing keys are published", http.StatusNotFound)
				return
			}
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, jwks)
	}
}

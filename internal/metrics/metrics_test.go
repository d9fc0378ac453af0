package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrsteele09/care-auth-server/internal/metrics"
	"github.com/stretchr/testify/require"
)

func TestInstrumentAndExport(t *testing.T) {
	metrics.Init()
	metrics.Init()

	h := metrics.Instrument("GET /teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))

	metrics.AuthEvent("login", metrics.OutcomeFailure)
	metrics.GuardDecision("clinician", false)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(body, `care_auth_http_requests_total{method="GET",route="GET /teapot",status="418"}`), body)
	require.Contains(t, body, `care_auth_events_total{event="login",outcome="failure"}`)
	require.Contains(t, body, `care_auth_guard_decisions_total{result="redirect",role="clinician"}`)
}

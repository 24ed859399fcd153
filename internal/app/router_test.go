package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/reconciler/internal/observability"
)

func TestRouterHealthAndMetrics(t *testing.T) {
	healthy := PingFunc(func(ctx context.Context) error { return nil })
	h := NewRouter(RouterParams{
		Config:  &Config{AppEnv: "test"},
		Metrics: observability.NewMetrics(),
		Checks:  map[string]Pinger{"postgres": healthy},
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok","postgres":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `reconciler_http_requests_total{code="200",route="/healthz"} 1`)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterHealthDegraded(t *testing.T) {
	down := PingFunc(func(ctx context.Context) error { return errors.New("connection refused") })
	h := NewRouter(RouterParams{Config: &Config{}, Checks: map[string]Pinger{"redis": down}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "degraded")
}

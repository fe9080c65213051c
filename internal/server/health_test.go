package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trasousa/mcp-gmail/internal/logging"
)

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var res HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestLivenessHandler(t *testing.T) {
	h := NewHealthChecker(nil)

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	res := decodeHealth(t, rec)
	assert.Equal(t, healthStatusOK, res.Status)
	assert.NotEmpty(t, res.Uptime)
}

func TestReadinessHandler(t *testing.T) {
	h := NewHealthChecker(nil)
	assert.True(t, h.IsReady())

	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, healthStatusOK, decodeHealth(t, rec).Status)

	h.SetReady(false)
	rec = httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, healthStatusNotReady, decodeHealth(t, rec).Status)
}

func TestReadinessHandlerDuringShutdown(t *testing.T) {
	sc := NewServerContext(context.Background(), nil, logging.New(false))
	h := NewHealthChecker(sc)

	require.NoError(t, sc.Shutdown())

	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, healthStatusShuttingDown, decodeHealth(t, rec).Status)
}

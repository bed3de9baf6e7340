package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker struct {
	status, message string
}

func (c staticChecker) CheckReady() (string, string) {
	return c.status, c.message
}

func readiness(t *testing.T, h *HealthHandler) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", http.NoBody))
	return rec.Code, decodeBody(t, rec)
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, nil).HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, statusOK, body["status"])
	assert.Equal(t, serviceName, body["service"])
}

func TestHealthReady(t *testing.T) {
	ok := staticChecker{status: statusOK}
	fail := staticChecker{status: statusFail, message: "connection refused"}
	degraded := staticChecker{status: statusDegraded}

	tests := []struct {
		name     string
		handler  *HealthHandler
		wantCode int
		want     string
	}{
		{"all ok", NewHealthHandler(ok, ok), http.StatusOK, statusOK},
		{"keycloak degraded", NewHealthHandler(ok, degraded), http.StatusOK, statusDegraded},
		{"postgres fail", NewHealthHandler(fail, ok), http.StatusServiceUnavailable, statusFail},
		{"not initialized", NewHealthHandler(nil, ok), http.StatusServiceUnavailable, statusFail},
		{"optional fail degrades", NewHealthHandler(ok, ok).WithOptional("audit_stream", fail), http.StatusOK, statusDegraded},
		{"optional ok", NewHealthHandler(ok, ok).WithOptional("audit_stream", ok), http.StatusOK, statusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := readiness(t, tt.handler)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.want, body["status"])
		})
	}
}

func TestHealthReady_ChecksReported(t *testing.T) {
	h := NewHealthHandler(staticChecker{status: statusOK}, staticChecker{status: statusFail, message: "timeout"}).
		WithOptional("audit_stream", staticChecker{status: statusFail})

	_, body := readiness(t, h)
	checks, ok := body["checks"].(map[string]any)
	require.True(t, ok)
	require.Len(t, checks, 3)

	kc := checks["keycloak"].(map[string]any)
	assert.Equal(t, statusFail, kc["status"])
	assert.Equal(t, "timeout", kc["message"])
	// Сам результат необязательной проверки не подменяется
	assert.Equal(t, statusFail, checks["audit_stream"].(map[string]any)["status"])
}

func TestOverallStatus(t *testing.T) {
	assert.Equal(t, statusOK, overallStatus())
	assert.Equal(t, statusOK, overallStatus(statusOK, statusOK))
	assert.Equal(t, statusDegraded, overallStatus(statusOK, statusDegraded))
	assert.Equal(t, statusFail, overallStatus(statusDegraded, statusFail))
}

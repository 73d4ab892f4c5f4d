package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(_ context.Context) error { return nil }

func failing(_ context.Context) error { return errors.New("connection refused") }

func serve(t *testing.T, checker *Checker, path string) (int, Response) {
	t.Helper()
	e := echo.New()
	checker.RegisterRoutes(e.Group(""))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestOverallStatus(t *testing.T) {
	assert.Equal(t, StatusHealthy, OverallStatus(map[string]CheckResult{"db": {Status: StatusHealthy}}))
	assert.Equal(t, StatusDegraded, OverallStatus(map[string]CheckResult{
		"db":    {Status: StatusHealthy},
		"redis": {Status: StatusDegraded},
	}))
	assert.Equal(t, StatusUnhealthy, OverallStatus(map[string]CheckResult{
		"db":    {Status: StatusUnhealthy},
		"redis": {Status: StatusDegraded},
	}))
}

func TestRun(t *testing.T) {
	checker := NewChecker("test")
	checker.Register("database", ok)
	checker.RegisterOptional("redis", failing)

	results := checker.Run(context.Background())
	assert.Equal(t, StatusHealthy, results["database"].Status)
	assert.Equal(t, StatusDegraded, results["redis"].Status)
	assert.Equal(t, "connection refused", results["redis"].Message)
	assert.Equal(t, []string{"database", "redis"}, checker.Names())
}

func TestHealthHandler(t *testing.T) {
	checker := NewChecker("test")
	checker.Register("database", failing)

	code, body := serve(t, checker, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusUnhealthy, body.Status)
	assert.Equal(t, "test", body.Version)
}

func TestReadinessHandler(t *testing.T) {
	checker := NewChecker("test")
	checker.Register("database", ok)

	code, body := serve(t, checker, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "startup")

	checker.SetReady(true)
	code, body = serve(t, checker, "/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, body.Status)
}

func TestLivenessHandler(t *testing.T) {
	code, body := serve(t, NewChecker("test"), "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, body.Status)
}

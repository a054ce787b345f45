package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthChecker_Ready(t *testing.T) {
	hc := NewHealthChecker(nil)
	hc.AddDependency("database", PingerFunc(func(context.Context) error { return nil }))
	hc.AddWritableDir("upload-dir", func() error { return nil })

	rec := httptest.NewRecorder()
	hc.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	report := hc.CheckHealth(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Len(t, report.Checks, 2)
}

func TestHealthChecker_NotReady(t *testing.T) {
	hc := NewHealthChecker(nil)
	hc.AddDependency("redis", PingerFunc(func(context.Context) error { return errors.New("connection refused") }))

	rec := httptest.NewRecorder()
	hc.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	live := httptest.NewRecorder()
	hc.LiveEndpoint(live, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, live.Code, "依赖故障不影响存活检查")

	report := hc.CheckHealth(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "connection refused", report.Checks[0].Message)
}

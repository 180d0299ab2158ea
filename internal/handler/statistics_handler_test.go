package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/middleware"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/service"
)

type statisticsServiceMock struct {
	stats     *models.Statistics
	result    *service.StatisticsRunResult
	err       error
	runCalled bool
	lastActor *models.JWTClaims
}

func (m *statisticsServiceMock) Get(ctx context.Context, actor *models.JWTClaims) (*models.Statistics, error) {
	m.lastActor = actor
	return m.stats, m.err
}

func (m *statisticsServiceMock) Run(ctx context.Context) (*service.StatisticsRunResult, error) {
	m.runCalled = true
	return m.result, m.err
}

type sessionServiceMock struct {
	payload models.LoginPayload
	actor   *models.JWTClaims
	err     error
}

func (m *sessionServiceMock) RecordLogin(ctx context.Context, actor *models.JWTClaims, payload models.LoginPayload) error {
	m.actor = actor
	m.payload = payload
	return m.err
}

func TestStatisticsHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &statisticsServiceMock{stats: &models.Statistics{UserID: "user-1", RejectionsByState: map[string]int{"applied": 2}}}
	h := NewStatisticsHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/statistics", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleUser})

	h.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", svc.lastActor.UserID)
	assert.Contains(t, w.Body.String(), `"applied":2`)
}

func TestStatisticsHandlerRun(t *testing.T) {
	gin.SetMode(gin.TestMode)
	watermark := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := &statisticsServiceMock{result: &service.StatisticsRunResult{EventsProcessed: 3, UsersUpdated: 1, Watermark: &watermark}}
	h := NewStatisticsHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/statistics/run", nil)

	h.Run(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.runCalled)
	assert.Contains(t, w.Body.String(), `"eventsProcessed":3`)
}

func TestSessionHandlerLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &sessionServiceMock{}
	h := NewSessionHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/sessions/login", bytes.NewBufferString(`{"userAgent":"Firefox"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:4711"
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	h.Login(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "user-1", svc.actor.UserID)
	assert.Equal(t, "Firefox", svc.payload.UserAgent)
	assert.Equal(t, "203.0.113.7", svc.payload.IP)
}

func TestSessionHandlerLoginWithoutBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &sessionServiceMock{}
	h := NewSessionHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/sessions/login", nil)
	req.Header.Set("User-Agent", "curl/8")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	h.Login(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "curl/8", svc.payload.UserAgent)
}

type pingerStub struct{ err error }

func (p pingerStub) PingContext(ctx context.Context) error { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewMetricsHandler(nil, map[string]Pinger{"postgres": pingerStub{}})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(nil, map[string]Pinger{"postgres": pingerStub{err: context.DeadlineExceeded}})
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "deadline exceeded")
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	metrics.ObserveTransition(service.TransitionAccept, service.OutcomeSuccess)
	h := NewMetricsHandler(metrics, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "application_transitions_total")
}

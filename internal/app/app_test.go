package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdash/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ListenAddr:         ":0",
		LogLevel:           "info",
		MaxFileSize:        1 << 20,
		UploadTimeout:      time.Minute,
		SessionTimeout:     time.Hour,
		SessionBackend:     config.BackendMemory,
		RedisTimeout:       time.Second,
		SQLitePath:         filepath.Join(t.TempDir(), "sessions.sqlite"),
		SweepInterval:      time.Minute,
		RateLimitEnabled:   true,
		RateLimitRequests:  2,
		RateLimitWindow:    time.Hour,
		APIRateLimitRPS:    100,
		APIRateLimitBurst:  100,
		CORSAllowedOrigins: []string{"*"},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a, err := New(ctx, Deps{Cfg: cfg, Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func upload(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "sales.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Property ID,Property locality,Purchase price,Contract date\n1,Sydney,500000,01/02/2023\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_WiresUploadAdmission(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	require.NotNil(t, a.Admission)

	assert.Equal(t, http.StatusOK, upload(t, a.Handler).Code)
	assert.Equal(t, http.StatusOK, upload(t, a.Handler).Code)
	rec := upload(t, a.Handler)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	n, ok := a.Store.Len()
	require.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestNew_AdmissionDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitEnabled = false
	a := newTestApp(t, cfg)
	assert.Nil(t, a.Admission)

	for range 3 {
		assert.Equal(t, http.StatusOK, upload(t, a.Handler).Code)
	}
}

func TestNew_HealthReportsBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.SessionBackend = config.BackendSQLite
	a := newTestApp(t, cfg)

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "sqlite", body["session_backend"])
	assert.NotContains(t, body, "sessions")
}

func TestNew_UnreachableRedisFallsBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.SessionBackend = config.BackendRedis
	cfg.RedisURL = "redis://127.0.0.1:1/0"
	cfg.RedisTimeout = 200 * time.Millisecond
	a := newTestApp(t, cfg)

	assert.Equal(t, "memory", a.Store.BackendName())
}

func TestNew_SchedulerSweeps(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	require.Equal(t, http.StatusOK, upload(t, a.Handler).Code)

	sessions, clients := a.Scheduler.RunOnce(context.Background())
	assert.Zero(t, sessions, "fresh session survives")
	assert.Zero(t, clients, "client with a recent request keeps its window")
}

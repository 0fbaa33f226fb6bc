package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdash/internal/domain"
)

func TestHTTPStatusFromDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", domain.ErrValidation(domain.CodeMissingSession, "x"), http.StatusBadRequest, "MISSING_SESSION"},
		{"processing", domain.ErrProcessing(domain.CodeEncodingError, "x"), http.StatusBadRequest, "ENCODING_ERROR"},
		{"file too large", domain.ErrProcessing(domain.CodeFileTooLarge, "x"), http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{"storage", domain.ErrStorage(domain.CodeStorageUnavailable, errors.New("dial"), "x"), http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
		{"rate limit", &domain.RateLimitError{RetryAfter: time.Minute}, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{"not found", domain.ErrNotFound("x"), http.StatusNotFound, "SESSION_EXPIRED"},
		{"wrapped", fmt.Errorf("outer: %w", domain.ErrValidation(domain.CodeNoFile, "x")), http.StatusBadRequest, "NO_FILE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, httpStatusFromDomainError(tc.err))
			assert.Equal(t, tc.code, errorCode(tc.err))
		})
	}
}

func TestWriteError_HidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, slog.New(slog.DiscardHandler), domain.ErrStorage(domain.CodeStorageUnavailable, errors.New("redis: dial tcp 10.0.0.5:6379"), "retrieve session"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestWriteError_RateLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, slog.New(slog.DiscardHandler), &domain.RateLimitError{RetryAfter: 90 * time.Second})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.RetryAfter)
	assert.Equal(t, 90, *body.RetryAfter)
	assert.Equal(t, "Too many requests. Please wait before trying again.", body.Error.Message)
}

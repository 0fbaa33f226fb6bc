package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureRequestID(t *testing.T, header string) (captured string, echoed string) {
	t.Helper()
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("X-Request-ID", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return captured, rec.Header().Get("X-Request-ID")
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	got, echoed := captureRequestID(t, "")
	require.NotEmpty(t, got)
	assert.Len(t, got, 36)
	assert.Equal(t, got, echoed)
}

func TestRequestID_Validation(t *testing.T) {
	tests := []struct {
		id   string
		keep bool
	}{
		{"abc-123_DEF.v2", true},
		{strings.Repeat("a", maxRequestIDLen), true},
		{strings.Repeat("a", maxRequestIDLen+1), false},
		{"fake\nINJECTED: x", false},
		{"with spaces", false},
		{"<script>", false},
	}
	for _, tc := range tests {
		got, _ := captureRequestID(t, tc.id)
		if tc.keep {
			assert.Equal(t, tc.id, got)
		} else {
			assert.NotEqual(t, tc.id, got)
		}
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

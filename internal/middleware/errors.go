package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"propdash/internal/domain"
)

// writeTooManyRequests renders the service error envelope for a 429.
func writeTooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":      domain.CodeRateLimitExceeded,
			"message":   (&domain.RateLimitError{RetryAfter: retryAfter}).Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		"retry_after": secs,
	})
}

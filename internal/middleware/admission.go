package middleware

import (
	"net/http"
	"time"
)

// Admitter decides whether a client may proceed. It is satisfied by the
// sliding-window admission controller.
type Admitter interface {
	Allow(clientID string) bool
	RetryAfter() time.Duration
}

// Admission gates a route behind a, keyed by ClientIP. Rejections get a 429
// with Retry-After equal to the admitter's window. onReject may be nil.
func Admission(a Admitter, onReject func(r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Allow(ClientIP(r)) {
				if onReject != nil {
					onReject(r)
				}
				writeTooManyRequests(w, a.RetryAfter())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

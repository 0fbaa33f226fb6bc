package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP identifies the caller for rate limiting: the first entry of
// X-Forwarded-For when present, otherwise the transport peer host. The
// service is expected to sit behind a proxy that sets the header.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Package middleware holds small, composable HTTP wrappers.
package middleware

import (
	"net/http"
	"strings"
)

// ForceHTTPS returns a wrapper that 308-redirects plain-HTTP requests to the
// HTTPS version of the same URL.  Requests for localhost, and requests a
// TLS-terminating proxy marked with X-Forwarded-Proto: https, pass through.
// When enabled is false the wrapper is a no-op.
func ForceHTTPS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS != nil ||
				strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") ||
				stripPort(r.Host) == "localhost" {
				next.ServeHTTP(w, r)
				return
			}
			target := "https://" + r.Host + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusPermanentRedirect)
		})
	}
}

// stripPort removes the :port suffix from Host when present.
func stripPort(h string) string {
	if i := strings.LastIndexByte(h, ':'); i != -1 && !strings.HasSuffix(h, "]") {
		return h[:i]
	}
	return h
}

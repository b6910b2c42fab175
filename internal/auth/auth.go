// Package auth guards state-changing endpoints with a static bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/star/satvis/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// exemptPaths are always public regardless of auth configuration.
// Read-only queries stay open; only the catalog refresh needs a token.
var exemptPaths = map[string]bool{
	"/":                      true,
	"/healthz":               true,
	"/readyz":                true,
	"/metrics":               true,
	"/api/v1/visible":        true,
	"/api/v1/visible/stream": true,
	"/api/v1/catalog":        true,
}

// exemptPrefixes are path prefixes that are always public.
var exemptPrefixes = []string{
	"/api/v1/passes/",
}

func isExempt(path string) bool {
	if exemptPaths[path] {
		return true
	}
	for _, prefix := range exemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware returns an HTTP middleware that enforces Bearer token auth
// on non-exempt paths when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="satvis"`)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Package middleware holds the HTTP middleware shared by the API routes.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Verifier checks an admin password.
type Verifier interface {
	Verify(candidate string) bool
}

// AdminAuth returns middleware that requires the admin password in header.
func AdminAuth(v Verifier, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Verify(r.Header.Get(header)) {
				slog.Debug("admin auth failed", "path", r.URL.Path, "remote", clientIP(r))
				writeDetail(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeDetail sends a {"detail": msg} JSON error body.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}

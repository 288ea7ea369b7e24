// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// healthPath is exempt from auth so probes work without credentials.
const healthPath = "/api/v1/health"

// authMiddleware enforces bearer-token auth on /api/v1 when a token is
// configured. Tokens are compared as SHA-256 digests in constant time,
// which also keeps the raw configured token out of long-lived memory
// beyond the Config value.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authEnabled || !strings.HasPrefix(r.URL.Path, "/api/v1/") || r.URL.Path == healthPath {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			writeProblem(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		candidate := sha256.Sum256([]byte(token))
		if subtle.ConstantTimeCompare(s.authHash[:], candidate[:]) != 1 {
			s.log.Debug("rejected request with invalid token", "path", r.URL.Path)
			writeProblem(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}

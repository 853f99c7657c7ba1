// Package server provides the HTTP API: chat runs (JSON and SSE), drafts,
// documents, memory search, credits and the MCP endpoint.
package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/quota"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/requestctx"
)

// AuthMiddleware validates Authorization: Bearer <key> (or X-Hackseeker-Key)
// and stores the key's user id in the request context.
func AuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Hackseeker-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			var userID string
			if key != "" {
				for k, u := range apiKeys {
					if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
						userID = u
						break
					}
				}
			}
			if userID == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(requestctx.SetUserID(r.Context(), userID)))
		})
	}
}

// RateLimitMiddleware answers 429 with Retry-After when the user exceeds the
// quota. A nil manager disables it.
func RateLimitMiddleware(q *quota.Manager) func(http.Handler) http.Handler {
	if q == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := q.Allow(requestctx.UserID(r.Context()))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, quota.ErrRateLimitExceeded):
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", err.Error())
			default:
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			}
		})
	}
}

// CORSMiddleware sets CORS headers. allowedOrigins can be ["*"] for any.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" {
				for _, o := range allowedOrigins {
					if o == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						break
					}
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Hackseeker-Key, Mcp-Session-Id")
			w.Header().Set("Access-Control-Max-Age", "300")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

/*
middleware.go - Authentication and request logging

PURPOSE:
  RequireAuth gates every /api route on a bearer token and puts the
  caller's ID in the request context, where handlers read it as the
  actor for applies, reverts and stock deltas.

  RequestLogger writes one structured line per request.

SEE ALSO:
  - auth/jwt.go: Token validation
  - server.go: Middleware order
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/warp/inventory-engine/auth"
)

// TokenValidator resolves a bearer token to the user it was issued to.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (uuid.UUID, error)
}

// RequireAuth rejects requests without a valid bearer token with 401.
func RequireAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}

			userID, err := tokens.Validate(r.Context(), token)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeText(w, http.StatusUnauthorized, message)
}

// actor is the authenticated caller, or "" outside RequireAuth.
func actor(r *http.Request) string {
	if id, ok := auth.UserIDFromContext(r.Context()); ok {
		return id.String()
	}
	return ""
}

// RequestLogger logs method, path, status, size and latency per request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"latency_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// SessionStore resolves a bearer token to the user it belongs to. Token
// issuance (login, registration) is owned by another service.
type SessionStore interface {
	UserForToken(ctx context.Context, token uuid.UUID) (uuid.UUID, error)
}

var ErrSessionNotFound = errors.New("session not found")

type contextKey struct{}

// UserID returns the authenticated user stored by Middleware.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(contextKey{}).(uuid.UUID)
	return id, ok
}

// WithUserID is for tests that bypass the middleware.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

func Middleware(store SessionStore, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			token, err := uuid.Parse(raw)
			if err != nil {
				unauthorized(w)
				return
			}

			userID, err := store.UserForToken(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrSessionNotFound) {
					log.Error("session lookup failed", "err", err)
				}
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
}

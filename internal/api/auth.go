package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/AviroopPaul/atlas-ai/internal/storage"
)

type contextKey string

const userContextKey contextKey = "user"

// UserResolver looks up the user owning an API token.
type UserResolver interface {
	GetUserByToken(apiToken string) (storage.User, error)
}

// BearerAuth resolves the bearer token to a user and stores it in the
// request context. Unknown tokens get a 401.
func BearerAuth(users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}

			user, err := users.GetUserByToken(auth[len(prefix):])
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "resolving token: %v", err)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
		})
	}
}

// requestUser returns the authenticated user placed by BearerAuth.
func requestUser(r *http.Request) storage.User {
	user, _ := r.Context().Value(userContextKey).(storage.User)
	return user
}

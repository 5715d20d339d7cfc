package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"strangleexecutor/src/model"
)

// userLookup is the slice of the user repository the middleware needs.
type userLookup interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
}

// HashToken maps a bearer token to the hex SHA-256 stored on the user row.
// Tokens are opaque uuids; only the hash ever touches the database.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RequireToken guards a route group with bearer-token auth. The resolved
// user is placed on the request context under UserKey.
func RequireToken(users userLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := users.FindByTokenHash(r.Context(), HashToken(token))
			if err != nil {
				logger.WithError(err).Error("token lookup failed")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if user == nil || !user.IsActive {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if user.TokenExpiresAt == nil || time.Now().After(*user.TokenExpiresAt) {
				logger.WithField("user_id", user.ID).Debug("expired bearer token rejected")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

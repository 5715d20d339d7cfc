package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"strangleexecutor/src/auth"
	"strangleexecutor/src/model"
	"strangleexecutor/src/repository"
	"strangleexecutor/src/security"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type userAccess interface {
	GetUserByUserName(ctx context.Context, userName string) (*model.User, error)
	Update(user *model.User) error
}

// LoginHandler exchanges username/password for an opaque bearer token.
// Only the token's SHA-256 is persisted; the raw token is returned once.
func LoginHandler(users userAccess) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload model.LoginPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid login payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		payload.Username = strings.TrimSpace(payload.Username)
		if payload.Username == "" || payload.Password == "" {
			http.Error(w, "Username and password are required", http.StatusBadRequest)
			return
		}

		user, err := users.GetUserByUserName(r.Context(), payload.Username)
		if err != nil || user == nil {
			logger.WithField("username", payload.Username).Warn("login attempt for unknown user")
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		if !user.IsActive {
			logger.WithField("user_id", user.ID).Warn("login attempt for inactive user")
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(payload.Password)); err != nil {
			logger.WithField("user_id", user.ID).Warn("login password mismatch")
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		token := uuid.NewString()
		expiresAt := time.Now().Add(time.Duration(security.GetConfig().TokenTTLHours) * time.Hour)
		user.TokenHash = auth.HashToken(token)
		user.TokenExpiresAt = &expiresAt

		if err := users.Update(user); err != nil {
			logger.WithError(err).Error("failed to persist login token")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(model.LoginResponse{
			Token:     token,
			ExpiresAt: expiresAt,
			User:      user.ToResponse(),
		}); err != nil {
			logger.WithError(err).Error("failed to encode login response")
		}
	}
}

// LogoutHandler invalidates the caller's current bearer token.
func LogoutHandler(users userAccess) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.GetUserFromContext(r.Context())
		if !ok || user == nil {
			logger.Warn("user not found in context during logout")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		user.TokenHash = ""
		user.TokenExpiresAt = nil

		if err := users.Update(user); err != nil {
			logger.WithError(err).Error("failed to clear login token")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "logged out"}); err != nil {
			logger.WithError(err).Error("failed to encode logout response")
		}
	}
}

// DefaultLoginHandler wires the handler to the production user repository.
func DefaultLoginHandler() http.HandlerFunc {
	return LoginHandler(repository.GetUserRepository())
}

// DefaultLogoutHandler wires the handler to the production user repository.
func DefaultLogoutHandler() http.HandlerFunc {
	return LogoutHandler(repository.GetUserRepository())
}

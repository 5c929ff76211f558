package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/clinicware/comms-hub-go/internal/audit"
	"github.com/clinicware/comms-hub-go/internal/model"
	"github.com/clinicware/comms-hub-go/internal/repository"
	"github.com/clinicware/comms-hub-go/internal/util"
)

type contextKey string

const UserContextKey contextKey = "clinicUser"

func GetClinicUser(ctx context.Context) *model.ClinicUser {
	if user, ok := ctx.Value(UserContextKey).(*model.ClinicUser); ok {
		return user
	}
	return nil
}

// ScopeFromContext derives the clinic scope from the authenticated user.
func ScopeFromContext(ctx context.Context) (repository.Scope, bool) {
	user := GetClinicUser(ctx)
	if user == nil {
		return repository.Scope{}, false
	}
	scope, err := repository.ForClinic(user.ClinicID)
	if err != nil {
		return repository.Scope{}, false
	}
	return scope, true
}

type AuthMiddleware struct {
	userRepo repository.ClinicUserRepository
}

func NewAuthMiddleware(userRepo repository.ClinicUserRepository) *AuthMiddleware {
	return &AuthMiddleware{userRepo: userRepo}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing authentication token",
			})
			return
		}

		tokenHash := util.HashToken(token)
		user, err := m.userRepo.FindByTokenHash(r.Context(), tokenHash)
		if err != nil {
			log.Error().Err(err).Msg("auth middleware: database error")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Authentication failed",
			})
			return
		}

		if user == nil {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": "invalid token"},
			})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid token",
			})
			return
		}

		if user.DisabledAt != nil {
			audit.LogFromRequest(r, audit.Event{
				Type:     audit.EventAuthFailure,
				ClinicID: user.ClinicID,
				UserID:   user.ID,
				Details:  map[string]interface{}{"reason": "disabled user"},
			})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid token",
			})
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects non-admin users. Runs after AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetClinicUser(r.Context())
		if user == nil || !user.IsAdmin() {
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": "Admin role required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

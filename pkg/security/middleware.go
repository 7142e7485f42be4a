package security

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/logger"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// Context keys for user information
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	UserTokenKey contextKey = "user_token"
)

// AuthenticateFunc extracts user ID and roles from HTTP request
// Return userID, roles, error. If error is not nil, request will be rejected.
type AuthenticateFunc func(r *http.Request) (userID int, roles string, err error)

// SecurityList holds the process-wide authentication callback.
type SecurityList struct {
	AuthenticateCallback AuthenticateFunc
}

var GlobalSecurity SecurityList

// AuthMiddleware authenticates API requests through GlobalSecurity.AuthenticateCallback.
func AuthMiddleware(next http.Handler) http.Handler {
	return NewAuthMiddleware(func(r *http.Request) (int, string, error) {
		if GlobalSecurity.AuthenticateCallback == nil {
			return 0, "", errNoCallback
		}
		return GlobalSecurity.AuthenticateCallback(r)
	})(next)
}

var errNoCallback = fmt.Errorf("AuthenticateCallback not set - you must provide an authentication callback")

// NewAuthMiddleware rejects requests the callback does not accept with 401 and
// stores the user id, roles and token in the request context otherwise.
func NewAuthMiddleware(authenticate AuthenticateFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, roles, err := authenticate(r)
			if err == errNoCallback {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if err != nil {
				token, _ := BearerToken(r)
				logger.Warn("Rejected %s %s with token %s: %v", r.Method, r.URL.Path, maskString(token, 4, 0), err)
				http.Error(w, "Authentication failed: "+err.Error(), http.StatusUnauthorized)
				return
			}

			// Add user information to context
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			if roles != "" {
				ctx = context.WithValue(ctx, UserRolesKey, roles)
			}
			if token, err := BearerToken(r); err == nil {
				ctx = context.WithValue(ctx, UserTokenKey, token)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken returns the credential of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization header not provided")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
		return "", fmt.Errorf("invalid authorization header format")
	}
	return strings.TrimSpace(tokenString), nil
}

// GetUserID extracts the user ID from context
func GetUserID(ctx context.Context) (int, bool) {
	userID, ok := ctx.Value(UserIDKey).(int)
	return userID, ok
}

// GetUserRoles extracts user roles from context
func GetUserRoles(ctx context.Context) (string, bool) {
	roles, ok := ctx.Value(UserRolesKey).(string)
	return roles, ok
}

// Chain creates a middleware chain
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

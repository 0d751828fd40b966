package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docvault/internal/access"
	"docvault/internal/shared/auth"
	"docvault/internal/shared/server/respond"
	"docvault/internal/shared/telemetry"
)

const (
	userIDKey      = "userId"
	userRoleKey    = "userRole"
	userEmailKey   = "userEmail"
	userNameKey    = "userName"
	userPictureKey = "userPicture"
	principalKey   = "principal"
)

var publicPrefixes = []string{
	"/api/v1/auth/google/",
	"/api/v1/blobs/",
}

// Auth validates bearer JWTs, resolves the caller into an access.Principal and
// stores it on both the gin and request contexts.
func Auth(resolver access.PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		path := c.Request.URL.Path
		for _, prefix := range publicPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if token == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		claims, err := auth.VerifyJWT(token)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		if resolver == nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "principal resolver unavailable", nil)
			return
		}
		principal, err := resolver.ResolvePrincipal(c.Request.Context(), claims.Sub)
		if err != nil {
			if errors.Is(err, access.ErrUnknownPrincipal) {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "unknown principal", nil)
				return
			}
			telemetry.Error("auth.resolve_principal.failed", map[string]any{
				"request_id": RequestIDFromContext(c),
				"user_id":    claims.Sub,
				"err":        err.Error(),
			})
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to resolve principal", nil)
			return
		}

		c.Set(userIDKey, principal.ID)
		c.Set(userRoleKey, string(principal.Role))
		c.Set(principalKey, principal)
		if claims.Email != "" {
			c.Set(userEmailKey, claims.Email)
		}
		if claims.Name != "" {
			c.Set(userNameKey, claims.Name)
		}
		if claims.Picture != "" {
			c.Set(userPictureKey, claims.Picture)
		}
		c.Request = c.Request.WithContext(access.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// PrincipalFromContext fetches the principal set by the auth middleware.
func PrincipalFromContext(c *gin.Context) (access.Principal, bool) {
	if c == nil {
		return access.Principal{}, false
	}
	val, ok := c.Get(principalKey)
	if !ok {
		return access.Principal{}, false
	}
	p, ok := val.(access.Principal)
	return p, ok
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	return stringFromContext(c, userIDKey)
}

// UserRoleFromContext fetches the role set by the auth middleware.
func UserRoleFromContext(c *gin.Context) string {
	return stringFromContext(c, userRoleKey)
}

// UserEmailFromContext fetches the user email set by the auth middleware.
func UserEmailFromContext(c *gin.Context) string {
	return stringFromContext(c, userEmailKey)
}

// UserNameFromContext fetches the user name set by the auth middleware.
func UserNameFromContext(c *gin.Context) string {
	return stringFromContext(c, userNameKey)
}

// UserPictureFromContext fetches the user picture set by the auth middleware.
func UserPictureFromContext(c *gin.Context) string {
	return stringFromContext(c, userPictureKey)
}

func stringFromContext(c *gin.Context, key string) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(key)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

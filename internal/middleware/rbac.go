package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/booknova-api/internal/models"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/response"
)

// RBAC enforces role-based access control for routes. The pseudo role SELF
// admits a caller whose user ID equals the :id path parameter.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, a := range allowed {
		if a == "SELF" {
			allowSelf = true
			continue
		}
		allowedRoles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if allowSelf {
			if targetID := c.Param("id"); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

// RequireAccess blocks callers whose access level is below min.
func RequireAccess(min models.AccessLevel) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.AccessLevel.AtLeast(min) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "access level "+string(min)+" required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// WriteAccess guards mutating routes: GET and HEAD pass through, everything
// else needs READ_WRITE.
func WriteAccess() gin.HandlerFunc {
	guard := RequireAccess(models.AccessReadWrite)
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "GET", "HEAD", "OPTIONS":
			c.Next()
		default:
			guard(c)
		}
	}
}

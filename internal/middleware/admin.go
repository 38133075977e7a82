package middleware

import (
	"net/http" // HTTP status codes

	"token_ledger/internal/utils" // Role names

	"github.com/gin-gonic/gin" // Gin web framework
)

// AdminOnlyMiddleware requires the admin role claim. It must run after
// JWTAuthMiddleware.
func AdminOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if c.GetString(ContextRole) != utils.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

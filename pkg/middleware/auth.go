package middleware

import (
	"strings"

	"adbarter/pkg/authtoken"
	"adbarter/pkg/errutil"

	"github.com/gin-gonic/gin"
)

const userIDKey = "auth.user_id"

// Auth verifies the bearer ID token and stores the subject user id on the
// gin context. Auth itself knows nothing about roles; capability checks
// happen in the services.
func Auth(verifier *authtoken.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{"code": errutil.StatusUnauthorized, "message": "missing bearer token"}})
			return
		}

		userID, err := verifier.Verify(strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{"code": errutil.StatusUnauthorized, "message": "invalid token"}})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id set by Auth, or "" when absent.
func UserID(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	id, _ := v.(string)
	return id
}

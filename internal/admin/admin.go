// Package admin provides operator endpoints for inspecting and clearing the
// directory's caches.
package admin

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAdminSecret carries the operator secret on admin requests.
const HeaderAdminSecret = "X-Admin-Secret"

// ClearResult reports a metadata cache clear.
type ClearResult struct {
	Removed int    `json:"removed"`
	AgentID string `json:"agentId,omitempty"`
}

// RequireAdmin rejects requests that do not carry secret in X-Admin-Secret.
// With an empty secret every admin request is refused.
func RequireAdmin(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "Admin endpoints are disabled; set ADMIN_SECRET to enable them",
			})
			return
		}

		got := c.GetHeader(HeaderAdminSecret)
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "X-Admin-Secret header required",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin secret",
			})
			return
		}
		c.Next()
	}
}

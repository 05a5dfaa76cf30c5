package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OwnerHeader carries the caller identity. Authentication itself lives in an
// upstream gateway; this service only needs the resolved owner id.
const OwnerHeader = "X-Owner-ID"

const ownerKey = "ownerID"

// RequireOwner rejects requests without an owner identity
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetHeader(OwnerHeader)
		if owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"message": "missing " + OwnerHeader + " header",
					"code":    "UNAUTHORIZED",
				},
			})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

// OwnerID returns the owner identity set by RequireOwner
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}

package http_api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// authRequired extracts the platform-verified subject from the bearer token.
// Session verification happens at the platform's API gateway before requests
// reach this service; an empty subject is rejected.
func (s *HTTPServer) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "missing bearer token",
			})
			return
		}

		subject := strings.TrimSpace(auth[7:])
		if subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "empty bearer token",
			})
			return
		}

		c.Set(userIDKey, subject)
		c.Next()
	}
}

// userID returns the authenticated user for the request.
func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

package middleware

import (
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS middleware for handling cross-origin requests. The desktop client
// runs from a tauri:// origin and the Android client from the packaged
// webview; both plus localhost dev servers are allowed.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := origin == "" ||
			strings.HasPrefix(origin, "tauri://") ||
			strings.Contains(origin, "localhost") ||
			strings.Contains(origin, "127.0.0.1")

		if customOrigins := os.Getenv("ALLOWED_ORIGINS"); !allowed && customOrigins != "" {
			for _, customOrigin := range strings.Split(customOrigins, ",") {
				if origin == strings.TrimSpace(customOrigin) {
					allowed = true
					break
				}
			}
		}

		if allowed && origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Max-Age", "24h")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"homechat/internal/auth"
)

// WSAuth authenticates the websocket handshake via a token query parameter;
// browsers and webviews cannot set headers on websocket upgrades. A missing
// or invalid token refuses the connection before any session is registered.
func WSAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		claims, err := auth.ParseToken(jwtSecret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

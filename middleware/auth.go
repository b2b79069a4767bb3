package middleware

import (
	"net/http"
	"strings"

	"coachly/services/booking"
	"coachly/utils"

	"github.com/gin-gonic/gin"
)

// JWTAuthMiddleware validates the bearer token and stores the acting user's
// id and role in the request context. The platform role is reserved for
// internal workers and is never accepted from a token.
func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		actorID, actorRole, err := utils.ExtractActorFromToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		if actorRole == booking.RolePlatform {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("actorID", actorID)
		c.Set("actorRole", actorRole)
		c.Next()
	}
}

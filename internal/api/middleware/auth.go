package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"boipaben/server/internal/auth"
)

const (
	// ContextKeyUserEmail holds the key for the user's email in Gin context.
	ContextKeyUserEmail = "userEmail"
	// ContextKeyUserName holds the key for the user's display name in Gin context.
	ContextKeyUserName = "userName"
)

// AuthMiddleware creates a Gin middleware for JWT authentication. Requests
// without a valid bearer token are rejected.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := claimsFromHeader(c, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(ContextKeyUserEmail, claims.Email)
		c.Set(ContextKeyUserName, claims.Name)
		c.Next()
	}
}

// OptionalAuthMiddleware populates the user identity when a valid token is
// present but lets anonymous requests through. Public listing pages use it:
// the same endpoint serves guests and signed-in users.
func OptionalAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			if claims, err := claimsFromHeader(c, jwtSecret); err == nil {
				c.Set(ContextKeyUserEmail, claims.Email)
				c.Set(ContextKeyUserName, claims.Name)
			}
		}
		c.Next()
	}
}

func claimsFromHeader(c *gin.Context, jwtSecret string) (*auth.Claims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("Authorization header required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, fmt.Errorf("Authorization header format must be Bearer {token}")
	}

	claims, err := auth.ValidateJWT(parts[1], jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("Invalid or expired token: %v", err)
	}
	return claims, nil
}

// UserEmail returns the authenticated email from the context, empty for
// anonymous requests.
func UserEmail(c *gin.Context) string {
	return c.GetString(ContextKeyUserEmail)
}

// UserName returns the authenticated display name from the context.
func UserName(c *gin.Context) string {
	return c.GetString(ContextKeyUserName)
}

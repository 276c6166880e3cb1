package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const tenantIDKey = "tenant_id"

// AuthMiddleware validates the bearer token issued by the hosting
// application and extracts the tenant id claim. Token issuance lives
// outside this service; we only verify.
func AuthMiddleware() gin.HandlerFunc {
	secret := []byte(os.Getenv("JWT_SECRET"))

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing or malformed Authorization header"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			c.Abort()
			return
		}

		tenantID, _ := claims[tenantIDKey].(string)
		if tenantID == "" {
			tenantID, _ = claims["sub"].(string)
		}
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token carries no tenant"})
			c.Abort()
			return
		}

		c.Set(tenantIDKey, tenantID)
		c.Next()
	}
}

// GetTenantID returns the tenant id set by AuthMiddleware.
func GetTenantID(c *gin.Context) string {
	return c.GetString(tenantIDKey)
}

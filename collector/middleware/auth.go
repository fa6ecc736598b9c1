package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fleetwatch/collector/services"
	"fleetwatch/pkg/models"
)

// PCIDKey is the gin context key the agent auth middleware stores the
// authenticated machine identifier under.
const PCIDKey = "pc_id"

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: message})
}

// AgentAuth validates the agent's bearer token and stores the bound
// machine identifier in the context. Handlers additionally check that the
// identifier matches the request body.
func AgentAuth(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		pcID, err := tokens.ValidateToken(token)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(PCIDKey, pcID)
		c.Next()
	}
}

// AdminAuth protects management endpoints with a static operator token.
// When no token is configured the endpoints are open (development mode).
func AdminAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" {
			c.Next()
			return
		}
		if bearerToken(c) != adminToken {
			abortUnauthorized(c, "admin token required")
			return
		}
		c.Next()
	}
}

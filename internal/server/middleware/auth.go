// Package middleware holds the gin middleware shared by the proxy's
// route groups.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tingly-dev/anthropic-proxy/internal/protocol"
)

// Auth validates the shared client secret. Clients may present it as
// x-api-key or as a bearer token. An empty secret disables the check.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		provided := c.GetHeader("x-api-key")
		if provided == "" {
			authz := c.GetHeader("Authorization")
			if strings.HasPrefix(authz, "Bearer ") {
				provided = strings.TrimPrefix(authz, "Bearer ")
			}
		}

		if provided != secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, protocol.NewErrorResponse(
				protocol.ErrKindUpstream,
				"Invalid API key. Provide the key via x-api-key or Authorization: Bearer.",
			))
			return
		}

		c.Next()
	}
}

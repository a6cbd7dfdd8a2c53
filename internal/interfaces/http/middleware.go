package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-gate/internal/models"
)

// Actor identity headers. Authentication is delegated to the fronting
// gateway; this layer only reads the identity it forwards.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
)

const identityKey = "identity"

// Identity is the caller identity attached to each request.
type Identity struct {
	ActorID string
	Role    string
}

// identityMiddleware extracts the caller identity from request headers.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := Identity{
			ActorID: c.GetHeader(HeaderActorID),
			Role:    c.GetHeader(HeaderActorRole),
		}
		if identity.Role == "" {
			identity.Role = models.RoleEmployee
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// requireAdmin rejects callers without the admin role.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := identityFrom(c)
		if identity.Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Error:   "admin role required",
			})
			return
		}
		if identity.ActorID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Error:   "actor id required",
			})
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) Identity {
	if v, ok := c.Get(identityKey); ok {
		if identity, ok := v.(Identity); ok {
			return identity
		}
	}
	return Identity{Role: models.RoleEmployee}
}

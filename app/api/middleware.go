package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joefazee/parimutuel/internal/security"
)

const (
	AuthorizationHeaderKey  = "Authorization"
	AuthorizationTypeBearer = "Bearer"
	IdentityContextKey      = "userID"
)

// Authenticate verifies the bearer token and stores the caller identity in
// the request context. Requests without a valid access token are rejected.
func Authenticate(tokenMaker security.Maker) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeaderKey)
		if authHeader == "" {
			UnauthorizedResponse(c)
			c.Abort()
			return
		}

		fields := strings.Fields(authHeader)
		if len(fields) < 2 || fields[0] != AuthorizationTypeBearer {
			UnauthorizedResponse(c)
			c.Abort()
			return
		}

		payload, err := tokenMaker.VerifyToken(fields[1])
		if err != nil {
			UnauthorizedResponse(c)
			c.Abort()
			return
		}
		if payload.Scope != security.TokenScopeAccess {
			ForbiddenResponse(c, "Access Denied: token scope not allowed")
			c.Abort()
			return
		}

		c.Set(IdentityContextKey, payload.Identity)
		c.Next()
	}
}

// IdentityFromContext returns the authenticated caller, or uuid.Nil.
func IdentityFromContext(c *gin.Context) uuid.UUID {
	if v, exists := c.Get(IdentityContextKey); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

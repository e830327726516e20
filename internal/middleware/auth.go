package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduling-api/pkg/auth"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/httputil"
)

const (
	ContextSubject = "subject"
	ContextRole    = "role"
)

type AuthMiddleware struct {
	verifier *auth.Verifier
}

func NewAuthMiddleware(verifier *auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate verifies the bearer token and stores its subject and role in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}
		if m.verify(c) {
			c.Next()
		}
	}
}

// OptionalAuthenticate lets anonymous requests through but still rejects a bad token.
func (m *AuthMiddleware) OptionalAuthenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		if m.verify(c) {
			c.Next()
		}
	}
}

func (m *AuthMiddleware) verify(c *gin.Context) bool {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
		return false
	}

	claims, err := m.verifier.Verify(strings.TrimSpace(parts[1]))
	if err != nil {
		httputil.RespondWithError(c, errors.Unauthorized(err))
		return false
	}

	c.Set(ContextSubject, claims.Subject)
	c.Set(ContextRole, claims.Role)
	return true
}

// RequireRole must run after Authenticate.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.Forbidden("permission denied"))
	}
}

// Actor is the authenticated subject, or empty for anonymous requests.
func Actor(c *gin.Context) string {
	return c.GetString(ContextSubject)
}

// Role is the authenticated role, or empty for anonymous requests.
func Role(c *gin.Context) string {
	return c.GetString(ContextRole)
}

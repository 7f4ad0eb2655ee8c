package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zainab-hr/ProjetProduits/internal/auth/service"
	"github.com/zainab-hr/ProjetProduits/pkg/response"
)

const (
	// ContextKeyUsername is the context key for the authenticated username
	ContextKeyUsername = "auth_username"
	// ContextKeyRole is the context key for the authenticated role
	ContextKeyRole = "auth_role"

	// UsernameHeader carries the verified identity to backend services
	UsernameHeader = "X-User-Username"
	// RoleHeader carries the verified role to backend services
	RoleHeader = "X-User-Role"
)

// RouteAuthorizer reports whether a request needs a verified token before
// it may pass. Routing policy lives with the proxy; this middleware only
// enforces it.
type RouteAuthorizer func(path, method string) bool

// Auth verifies the bearer token on protected routes and stamps the
// verified identity onto the forwarded request. Backends trust these
// headers, so any client-supplied values are dropped first.
func Auth(tokens service.TokenService, requiresAuth RouteAuthorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Never let a caller smuggle identity headers past the gateway
		c.Request.Header.Del(UsernameHeader)
		c.Request.Header.Del(RoleHeader)

		if !requiresAuth(c.Request.URL.Path, c.Request.Method) {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			response.Unauthorized(c, "Missing authorization header")
			c.Abort()
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			response.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextKeyUsername, claims.Username)
		c.Set(ContextKeyRole, string(claims.Role))
		c.Request.Header.Set(UsernameHeader, claims.Username)
		c.Request.Header.Set(RoleHeader, string(claims.Role))

		c.Next()
	}
}

// Package middleware extracts the tenant+actor envelope every public
// operation needs. Authentication itself is out of scope (spec §1) — this
// module trusts that an upstream collaborator has already attached a
// TenantContext to the request by the time it reaches these handlers,
// generalizing the teacher's own UserContext/AuthMiddleware pattern from a
// single-user JWT claim to a tenant-scoped actor envelope.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TenantContextKey is the Gin context key the tenant envelope is stored
// under.
const TenantContextKey = "tenant"

// TenantContext is the tenant+actor envelope every core operation is
// scoped by (spec §3: "every query and mutation is constrained by
// organizationId").
type TenantContext struct {
	OrganizationID string
	ActorID        string
	ActorName      string
}

// RequireTenantHeader is a minimal stand-in for the real multi-tenant
// auth collaborator (§1, out of scope): it trusts an already-validated
// upstream gateway to set these headers and just shapes them into a
// TenantContext. A production deployment replaces this middleware
// entirely without touching anything downstream of it.
func RequireTenantHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.GetHeader("X-Organization-Id")
		actorID := c.GetHeader("X-Actor-Id")
		if orgID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-Organization-Id"})
			c.Abort()
			return
		}
		c.Set(TenantContextKey, TenantContext{
			OrganizationID: orgID,
			ActorID:        actorID,
			ActorName:      c.GetHeader("X-Actor-Name"),
		})
		c.Next()
	}
}

// GetTenantContext retrieves the TenantContext set by RequireTenantHeader.
func GetTenantContext(c *gin.Context) (TenantContext, bool) {
	v, exists := c.Get(TenantContextKey)
	if !exists {
		return TenantContext{}, false
	}
	tc, ok := v.(TenantContext)
	return tc, ok
}

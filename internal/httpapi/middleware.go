package httpapi

import (
	"net/http"

	"github.com/casbin/casbin/v3"
	"github.com/gin-gonic/gin"
)

const subjectHeader = "X-DLSC-Subject"

// requireRole aborts the request unless the enforcer grants sub the
// (obj, act) pair. The caller's role/identity arrives via a trusted
// upstream header (X-DLSC-Subject): this package performs
// authorization only, not authentication.
func requireRole(enforcer *casbin.Enforcer, obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetHeader(subjectHeader)
		if subject == "" {
			subject = "viewer"
		}

		allowed, err := enforcer.Enforce(subject, obj, act)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization check failed"})
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

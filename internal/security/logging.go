package security

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// TenantHeader carries the caller's tenant id on every API request.
const TenantHeader = "X-Tenant-ID"

const tenantContextKey = "tenantID"

// AccessLogMiddleware logs each HTTP request with method, path, status, and duration.
// Paths listed in skipPaths are silently passed through without logging.
func AccessLogMiddleware(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", duration,
			"tenant", GetTenantID(c),
			"clientIP", c.ClientIP(),
		)
	}
}

// TenantMiddleware extracts the tenant id from the request header and rejects
// requests without one. Downstream handlers read it via GetTenantID; there is
// no ambient default tenant.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader(TenantHeader)
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":  "missing_tenant",
				"error": TenantHeader + " header is required",
			})
			return
		}
		c.Set(tenantContextKey, tenant)
		c.Next()
	}
}

// GetTenantID returns the tenant id set by TenantMiddleware, or "".
func GetTenantID(c *gin.Context) string {
	tenant, _ := c.Value(tenantContextKey).(string)
	return tenant
}

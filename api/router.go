package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// corsMiddleware allows the dashboard front-ends to call the API from
// another origin. An allowed origin of "*" permits any caller.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	wildcard := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			wildcard = true
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			if wildcard {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// NewRouter builds the gin engine with all routes registered. The /api/scan
// and /api/history route families serve the same records; both are kept so
// existing clients keep working.
func NewRouter(h *Handlers, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(allowedOrigins))

	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", h.Health)

		apiGroup.POST("/scan", h.Scan)
		apiGroup.GET("/scan/:scan_id", h.GetScan)
		apiGroup.PUT("/scan/:scan_id/name", h.RenameScan)
		apiGroup.GET("/scans", h.ListScans)
		apiGroup.GET("/results", h.Results)

		apiGroup.GET("/history", h.ListScans)
		apiGroup.GET("/history/:scan_id", h.GetScan)
		apiGroup.PUT("/history/:scan_id/name", h.RenameScan)
		apiGroup.DELETE("/history/:scan_id", h.DeleteScan)
		apiGroup.POST("/history/:scan_id/load", h.LoadScan)

		apiGroup.POST("/feedback", h.Feedback)
		apiGroup.GET("/metrics", h.Metrics)
		apiGroup.GET("/events", h.Events)

		apiGroup.GET("/whitelist", h.Whitelist)
		apiGroup.DELETE("/whitelist/:pattern", h.RemoveWhitelistPattern)
	}

	return r
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// readiness is satisfied by *health.HealthChecker.
type readiness interface {
	Statuses() map[string]string
	Serving() bool
}

// RegisterHealth mounts /healthz (liveness) and /readyz (dependency status).
func RegisterHealth(r gin.IRoutes, ready readiness) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if !ready.Serving() {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "dependencies": ready.Statuses()})
	})
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	pkgredis "github.com/zainab-hr/ProjetProduits/pkg/redis"
)

// HealthHandler handles gateway health check requests
type HealthHandler struct {
	redis *pkgredis.Client
}

// NewHealthHandler creates a new HealthHandler. The Redis client may be
// nil when the gateway runs with the local rate limiter only.
func NewHealthHandler(redis *pkgredis.Client) *HealthHandler {
	return &HealthHandler{redis: redis}
}

// Health returns basic health status
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "api-gateway",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready checks the gateway's own dependencies. Upstream services report
// their own readiness; the gateway does not probe them here.
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	components := gin.H{}

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()); err != nil {
			components["redis"] = "disconnected"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"service":    "api-gateway",
				"components": components,
			})
			return
		}
		components["redis"] = "connected"
	} else {
		components["redis"] = "not configured"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"service":    "api-gateway",
		"components": components,
	})
}

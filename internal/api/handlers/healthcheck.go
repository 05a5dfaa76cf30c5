package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthChecker is anything that can report component health
type HealthChecker interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) map[string]interface{}
}

// HealthHandler reports service and dependency health
type HealthHandler struct {
	db    HealthChecker
	cache HealthChecker
}

// NewHealthHandler creates the healthcheck handler
func NewHealthHandler(db, cache HealthChecker) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Check reports component status; any failing dependency turns the response
// into a 503 so load balancers rotate the instance out.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()

	status := http.StatusOK
	components := gin.H{}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			components["database"] = gin.H{"status": "down", "error": err.Error()}
		} else {
			components["database"] = h.db.Health(ctx)
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			components["redis"] = gin.H{"status": "down", "error": err.Error()}
		} else {
			components["redis"] = h.cache.Health(ctx)
		}
	}

	overall := "up"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":     overall,
		"components": components,
	})
}

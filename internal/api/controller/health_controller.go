package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is a dependency that can report its health.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a plain ping function to HealthChecker.
type PingFunc func(ctx context.Context) error

// PingContext calls f.
func (f PingFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

// HealthController serves liveness and readiness probes.
type HealthController struct {
	checks map[string]HealthChecker
}

// NewHealthController creates a HealthController. Nil checkers are skipped.
func NewHealthController(checks map[string]HealthChecker) *HealthController {
	filtered := make(map[string]HealthChecker, len(checks))
	for name, c := range checks {
		if c != nil {
			filtered[name] = c
		}
	}
	return &HealthController{checks: filtered}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is a liveness probe. It has no dependency checks.
func (h *HealthController) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz pings every dependency and returns 503 if any of them fails.
func (h *HealthController) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	healthy := true
	for name, checker := range h.checks {
		if err := checker.PingContext(ctx); err != nil {
			checks[name] = "error"
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Checks: checks})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}

package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is a dependency whose reachability decides server health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthController handles health check endpoints
type HealthController struct {
	pingers []Pinger
	timeout time.Duration
}

// NewHealthController creates a new HealthController instance
func NewHealthController(pingers ...Pinger) *HealthController {
	return &HealthController{pingers: pingers, timeout: 2 * time.Second}
}

// HealthCheck handles GET /health requests to check server health
func (c *HealthController) HealthCheck(ctx echo.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), c.timeout)
	defer cancel()

	for _, p := range c.pingers {
		if err := p.Ping(reqCtx); err != nil {
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
			})
		}
	}
	return ctx.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

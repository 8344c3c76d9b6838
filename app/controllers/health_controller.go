package controllers

import (
	"net/http"
	"time"

	"github.com/aihub/ai-gateway/internal/database"
)

// HealthController 存活与依赖检查
type HealthController struct {
	BaseController
	Checker *database.HealthChecker
	Network string
	Version string
}

// Health GET /health
func (c *HealthController) Health() {
	result := c.Checker.Check(c.Ctx.Request.Context())

	status, code := "ok", http.StatusOK
	if !result.Healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, map[string]interface{}{
		"status":    status,
		"version":   c.Version,
		"network":   c.Network,
		"database":  result.Database,
		"redis":     result.Redis,
		"timestamp": time.Now().UTC(),
	})
}

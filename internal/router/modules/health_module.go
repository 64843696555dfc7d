package modules

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/account-service/pkg/response"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// HealthModule serves GET /healthz. Any failing check turns the answer into 503.
type HealthModule struct {
	Checks  map[string]Check
	Timeout time.Duration
}

func NewHealthModule(checks map[string]Check) *HealthModule {
	return &HealthModule{Checks: checks, Timeout: 2 * time.Second}
}

func (m *HealthModule) Register(rg *gin.RouterGroup) {
	rg.GET("/healthz", m.handle)
}

func (m *HealthModule) handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), m.Timeout)
	defer cancel()

	status := make(map[string]string, len(m.Checks))
	healthy := true
	for name, check := range m.Checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		response.Error[any](c, http.StatusServiceUnavailable, "unhealthy", status)
		return
	}
	response.Success(c, http.StatusOK, status, "ok", nil)
}

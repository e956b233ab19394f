package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Probe checks every backend and returns one entry per component; a nil
// error means healthy.
type Probe func(ctx context.Context) map[string]error

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	probe   Probe
	version string
	startAt time.Time
	timeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.  probe may be nil.
func NewHealthHandler(version string, probe Probe) *HealthHandler {
	return &HealthHandler{
		probe:   probe,
		version: version,
		startAt: time.Now(),
		timeout: 5 * time.Second,
	}
}

// LivenessResponse is the response for liveness probe.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse is the response for readiness probe.
type ReadinessResponse struct {
	Status     string                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
}

// ComponentCheck represents the health status of a single component.
type ComponentCheck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Liveness handles GET /healthz.  It never touches a backend.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// Readiness handles GET /readyz: 200 when every backend answers, 503 otherwise.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if h.probe == nil {
		c.JSON(http.StatusOK, ReadinessResponse{Status: "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := ReadinessResponse{Status: "ready", Components: make(map[string]ComponentCheck)}
	code := http.StatusOK
	for name, err := range h.probe(ctx) {
		cc := ComponentCheck{Status: "healthy"}
		if err != nil {
			cc = ComponentCheck{Status: "unhealthy", Error: err.Error()}
			resp.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}
		resp.Components[name] = cc
	}
	c.JSON(code, resp)
}

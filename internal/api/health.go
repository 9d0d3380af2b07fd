package api

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/voicebot/internal/pipeline"
)

// HealthSource reports pipeline component health.
type HealthSource interface {
	HealthCheck() pipeline.Health
}

// Pinger checks an external dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status        string                              `json:"status"`
	Version       string                              `json:"version"`
	UptimeSeconds int64                               `json:"uptime_seconds"`
	Components    map[string]pipeline.ComponentHealth `json:"components"`
	Checks        map[string]string                   `json:"checks"`
}

type HealthHandler struct {
	pipe      HealthSource
	redis     Pinger // nil = not configured
	version   string
	startTime time.Time
}

func NewHealthHandler(pipe HealthSource, redis Pinger, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		pipe:      pipe,
		redis:     redis,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := pipeline.StatusHealthy
	httpStatus := http.StatusOK

	ph := h.pipe.HealthCheck()
	if ph.Status != pipeline.StatusHealthy {
		status = pipeline.StatusUnhealthy
		httpStatus = http.StatusServiceUnavailable
	}

	// Redis only degrades the service: caches fall back to process memory.
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.redis.Ping(ctx)
		cancel()
		if err != nil {
			checks["redis"] = "error"
			if status == pipeline.StatusHealthy {
				status = "degraded"
			}
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "not_configured"
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Components:    ph.Components,
		Checks:        checks,
	})
}

package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/salesplan/backend/internal/interfaces/http/dto"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler handles health and system information endpoints
type SystemHandler struct {
	BaseHandler
	name        string
	version     string
	db          Pinger
	pingTimeout time.Duration
	startTime   time.Time
}

// SystemOption configures a SystemHandler
type SystemOption func(*SystemHandler)

// WithDatabase makes Health report the database state
func WithDatabase(db Pinger, timeout time.Duration) SystemOption {
	return func(h *SystemHandler) {
		h.db = db
		if timeout > 0 {
			h.pingTimeout = timeout
		}
	}
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string, opts ...SystemOption) *SystemHandler {
	h := &SystemHandler{
		name:        name,
		version:     version,
		pingTimeout: 2 * time.Second,
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse is the liveness and readiness report
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Time     string `json:"time"`
}

// Health pings the database and answers 503 when it is unreachable
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:   "healthy",
		Database: "unchecked",
		Time:     time.Now().Format(time.RFC3339),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.pingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Database = "unreachable"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp.Database = "connected"
	}

	c.JSON(http.StatusOK, resp)
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GetSystemInfo returns basic system information including version and uptime
// GET /system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(info))
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping is a cheap responsiveness check that never touches the database
// GET /system/ping
func (h *SystemHandler) Ping(c *gin.Context) {
	response := PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(response))
}

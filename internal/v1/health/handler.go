package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatwire/chatserver/internal/v1/bus"
	"github.com/chatwire/chatserver/internal/v1/logging"
)

// ChatChecker checks that the chat listener is accepting connections.
type ChatChecker interface {
	Check(ctx context.Context, addr string) string
}

// DefaultChatChecker dials the chat port and hangs up.
type DefaultChatChecker struct{}

// Check verifies TCP connectivity to the chat listener.
func (c *DefaultChatChecker) Check(ctx context.Context, addr string) string {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		logging.Error(ctx, "chat listener health check failed", zap.Error(err), zap.String("addr", addr))
		return "unhealthy"
	}
	_ = conn.Close()
	return "healthy"
}

// Handler manages health check endpoints.
type Handler struct {
	redisService *bus.Service
	chatAddr     string
	chatChecker  ChatChecker
}

// NewHandler creates a new health check handler. chatAddr is the chat
// listener's address, e.g. "127.0.0.1:7575".
func NewHandler(redisService *bus.Service, chatAddr string) *Handler {
	return &Handler{
		redisService: redisService,
		chatAddr:     chatAddr,
		chatChecker:  &DefaultChatChecker{},
	}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only if all critical dependencies are healthy
// Returns 503 if any dependency is unhealthy
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	chatStatus := h.checkChatListener(ctx)
	checks["chat_listener"] = chatStatus
	if chatStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// checkRedis verifies Redis connectivity using PING
func (h *Handler) checkRedis(ctx context.Context) string {
	// Single-instance mode (no bus) is healthy by definition
	if h.redisService == nil {
		return "healthy"
	}

	if err := h.redisService.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}

// checkChatListener verifies the chat port is accepting connections
func (h *Handler) checkChatListener(ctx context.Context) string {
	if h.chatChecker == nil {
		return "unhealthy"
	}
	return h.chatChecker.Check(ctx, h.chatAddr)
}

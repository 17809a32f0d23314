package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ThomasChan/Farm-Land/internal/middleware"
)

const (
	// APIVersion is the current version of the API
	APIVersion = "0.1.0"
	// HealthCheckTimeout is the timeout for upstream health checks
	HealthCheckTimeout = 2 * time.Second
)

// Pinger checks that an upstream URL answers.
type Pinger interface {
	Ping(ctx context.Context, url string) error
}

// SessionCounter reports how many console sessions are open.
type SessionCounter interface {
	Count() int
}

// HealthHandler handles health check and readiness endpoints.
type HealthHandler struct {
	pinger    Pinger
	sessions  SessionCounter
	startTime time.Time
	env       string
	backend   string
	upstreams []string
}

// NewHealthHandler creates a new HealthHandler instance. Readiness pings
// every URL in upstreams.
func NewHealthHandler(pinger Pinger, sessions SessionCounter, env, backend string, upstreams ...string) *HealthHandler {
	return &HealthHandler{
		pinger:    pinger,
		sessions:  sessions,
		startTime: time.Now(),
		env:       env,
		backend:   backend,
		upstreams: upstreams,
	}
}

// HealthResponse represents the basic health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream"`
}

// InfoResponse represents the API information response.
type InfoResponse struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Uptime      string `json:"uptime"`
	Backend     string `json:"backend"`
	Sessions    int    `json:"sessions"`
}

// Health handles GET /health endpoint.
// This is a basic health check that always returns 200 OK.
// It does not check any dependencies and is used for basic liveness checks.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
	})
}

// Ready handles GET /health/ready endpoint.
// It verifies that the layer collection and auth endpoints are reachable.
// Returns 200 OK if all of them answer, 503 Service Unavailable otherwise.
func (h *HealthHandler) Ready(c *gin.Context) {
	// Create context with timeout for upstream pings
	ctx, cancel := context.WithTimeout(c.Request.Context(), HealthCheckTimeout)
	defer cancel()

	for _, url := range h.upstreams {
		if err := h.pinger.Ping(ctx, url); err != nil {
			// Get logger from context (set by logger middleware)
			if log := middleware.GetLogger(c); log != nil {
				log.Error("Upstream health check failed", err, map[string]interface{}{
					"url":     url,
					"timeout": HealthCheckTimeout.String(),
				})
			}

			c.JSON(http.StatusServiceUnavailable, ReadyResponse{
				Status:   "not_ready",
				Upstream: "unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, ReadyResponse{
		Status:   "ready",
		Upstream: "reachable",
	})
}

// Info handles GET /api/v1/info endpoint.
// Returns API metadata including version, environment, map backend and uptime.
func (h *HealthHandler) Info(c *gin.Context) {
	uptime := time.Since(h.startTime)

	sessions := 0
	if h.sessions != nil {
		sessions = h.sessions.Count()
	}

	c.JSON(http.StatusOK, InfoResponse{
		Version:     APIVersion,
		Environment: h.env,
		Uptime:      formatUptime(uptime),
		Backend:     h.backend,
		Sessions:    sessions,
	})
}

// formatUptime formats a duration into a human-readable string.
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

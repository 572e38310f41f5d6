package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"storeadmin/internal/caching"
	"storeadmin/internal/catalog"
	"storeadmin/internal/productform"

	"github.com/labstack/echo/v4"
)

const version = "1.0.0"

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	cache     caching.CacheService
	store     *catalog.Store
	forms     *productform.Manager
	startedAt time.Time
}

// NewHealthHandlers creates a new health handlers instance
func NewHealthHandlers(cache caching.CacheService, store *catalog.Store, forms *productform.Manager) *HealthHandlers {
	return &HealthHandlers{
		cache:     cache,
		store:     store,
		forms:     forms,
		startedAt: time.Now(),
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version"`
}

// HealthCheck reports cache and catalog connectivity
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
		Version:   version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
	}

	if err := h.cache.Ping(ctx); err != nil {
		health.Services["cache"] = "unhealthy"
		health.Status = "degraded"
	} else {
		health.Services["cache"] = "healthy"
	}

	if h.store.RefreshedAt().IsZero() {
		health.Services["catalog"] = "not loaded"
		health.Status = "degraded"
	} else {
		health.Services["catalog"] = "healthy"
	}

	statusCode := http.StatusOK
	if health.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, health)
}

// LivenessCheck determines if the application is running (basic liveness probe)
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// MetricsResponse represents application metrics
type MetricsResponse struct {
	Timestamp  time.Time              `json:"timestamp"`
	Version    string                 `json:"version"`
	Goroutines int                    `json:"goroutines"`
	Metrics    map[string]interface{} `json:"metrics"`
}

// GetMetrics provides application metrics
func (h *HealthHandlers) GetMetrics(c echo.Context) error {
	refreshed := h.store.RefreshedAt()
	metrics := &MetricsResponse{
		Timestamp:  time.Now().UTC(),
		Version:    version,
		Goroutines: runtime.NumGoroutine(),
		Metrics: map[string]interface{}{
			"open_forms": h.forms.Len(),
			"categories": len(h.store.Snapshot()),
			"category_snapshot_age_seconds": func() float64 {
				if refreshed.IsZero() {
					return -1
				}
				return time.Since(refreshed).Seconds()
			}(),
		},
	}
	return c.JSON(http.StatusOK, metrics)
}

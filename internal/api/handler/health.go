package handler

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/hexfold/streamrelay/internal/session"
)

var startTime = time.Now()

// HealthHandler handles health and stats endpoints.
type HealthHandler struct {
	registry *session.Registry
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(registry *session.Registry) *HealthHandler {
	return &HealthHandler{
		registry: registry,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp"`
	ActiveDownloads int    `json:"activeDownloads"`
}

// Health handles GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		ActiveDownloads: h.registry.Active(),
	})
}

// SystemStats contains process resource statistics.
type SystemStats struct {
	Uptime          int64  `json:"uptime_seconds"`
	UptimeHuman     string `json:"uptime_human"`
	MemAllocMB      int64  `json:"mem_alloc_mb"`
	MemSysMB        int64  `json:"mem_sys_mb"`
	MemHeapMB       int64  `json:"mem_heap_mb"`
	NumGoroutines   int    `json:"num_goroutines"`
	NumCPU          int    `json:"num_cpu"`
	ActiveDownloads int    `json:"active_downloads"`
	TrackedSessions int    `json:"tracked_sessions"`
}

// Stats handles GET /api/stats - process statistics for the admin UI.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	writeJSON(w, http.StatusOK, SystemStats{
		Uptime:          int64(uptime.Seconds()),
		UptimeHuman:     formatUptime(uptime),
		MemAllocMB:      int64(m.Alloc / 1024 / 1024),
		MemSysMB:        int64(m.Sys / 1024 / 1024),
		MemHeapMB:       int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines:   runtime.NumGoroutine(),
		NumCPU:          runtime.NumCPU(),
		ActiveDownloads: h.registry.Active(),
		TrackedSessions: len(h.registry.List()),
	})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

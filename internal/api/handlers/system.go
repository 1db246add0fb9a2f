package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"detectorx-worker-go/internal/models"
)

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	WorkerID  string
	startedAt time.Time
	monitors  func() []models.MonitorStatus
	clients   func() int
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(workerID string, monitors func() []models.MonitorStatus, clients func() int) *SystemHandler {
	return &SystemHandler{
		WorkerID:  workerID,
		startedAt: time.Now(),
		monitors:  monitors,
		clients:   clients,
	}
}

// @Summary Get system stats
// @Description Get runtime statistics and monitor counts
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var statuses []models.MonitorStatus
	if h.monitors != nil {
		statuses = h.monitors()
	}
	byState := lo.CountValuesBy(statuses, func(s models.MonitorStatus) models.MonitorState { return s.State })
	alerts := lo.SumBy(statuses, func(s models.MonitorStatus) int64 { return s.AlertsSent })

	wsClients := 0
	if h.clients != nil {
		wsClients = h.clients()
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"worker_id":      h.WorkerID,
			"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
			"memory_mb":      m.Alloc / 1024 / 1024,
			"cpu_cores":      runtime.NumCPU(),
			"goroutines":     runtime.NumGoroutine(),
			"go_version":     runtime.Version(),
			"monitors":       byState,
			"alerts_sent":    alerts,
			"ws_clients":     wsClients,
		},
		"timestamp": time.Now().Unix(),
	})
}

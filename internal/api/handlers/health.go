package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	WorkerID     string
	Version      string
	detectorOK   func() bool
	capabilities func() map[string]interface{}
}

func NewHealthHandler(workerID, version string, detectorOK func() bool, capabilities func() map[string]interface{}) *HealthHandler {
	return &HealthHandler{
		WorkerID:     workerID,
		Version:      version,
		detectorOK:   detectorOK,
		capabilities: capabilities,
	}
}

type HealthResponse struct {
	Status   string `json:"status" example:"healthy"`
	WorkerID string `json:"worker_id" example:"detectorx-worker-1"`
	Detector string `json:"detector" example:"up"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id" example:"detectorx-worker-1"`
	Status       string   `json:"status" example:"running"`
	Version      string   `json:"version" example:"1.0.0"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Check if the worker is healthy; reports degraded while the detector is unreachable
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := HealthResponse{Status: "healthy", WorkerID: h.WorkerID, Detector: "up"}
	if h.detectorOK != nil && !h.detectorOK() {
		resp.Status = "degraded"
		resp.Detector = "down"
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Worker information
// @Description Get basic worker information and capabilities
// @Tags health
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  h.Version,
		Capabilities: []string{
			"fire_smoke_detection",
			"image_upload",
			"video_upload",
			"camera_monitoring",
			"mjpeg_preview",
			"websocket_reports",
		},
	})
}

// @Summary Configured integrations
// @Description Which notification channels, analyzer, image host and event bus are configured
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /config/capabilities [get]
func (h *HealthHandler) Capabilities(c *gin.Context) {
	if h.capabilities == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, h.capabilities())
}

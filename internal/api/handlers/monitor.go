package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"detectorx-worker-go/internal/config"
	"detectorx-worker-go/internal/logging"
	"detectorx-worker-go/internal/services/alerting"
	"detectorx-worker-go/internal/services/monitor"
	"detectorx-worker-go/internal/services/publisher/mjpeg"
	"detectorx-worker-go/internal/services/streamcapture"
)

// MonitorHandler manages long-running video and camera monitors
type MonitorHandler struct {
	cfg          *config.Config
	manager      *monitor.Manager
	mjpeg        *mjpeg.Publisher
	uploadPolicy alerting.ReleasePolicy
	uploadDir    string
}

func NewMonitorHandler(cfg *config.Config, manager *monitor.Manager, publisher *mjpeg.Publisher, uploadPolicy alerting.ReleasePolicy) *MonitorHandler {
	return &MonitorHandler{
		cfg:          cfg,
		manager:      manager,
		mjpeg:        publisher,
		uploadPolicy: uploadPolicy,
		uploadDir:    os.TempDir(),
	}
}

// CameraRequest starts a live camera monitor
type CameraRequest struct {
	// Device index ("0") or stream URL
	DeviceID string          `json:"device_id" binding:"required" example:"0"`
	Settings SettingsRequest `json:"settings"`
}

func monitorError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, monitor.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, monitor.ErrLimit):
		status = http.StatusTooManyRequests
	case errors.Is(err, monitor.ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, streamcapture.ErrSourceOpen):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

// StartVideo godoc
// @Summary Monitor an uploaded video
// @Description Upload a video file and process it frame by frame in the background
// @Tags monitors
// @Accept multipart/form-data
// @Produce json
// @Param video formData file true "Video file"
// @Param confidence formData number false "Confidence threshold (0-1)"
// @Param cooldown_seconds formData number false "Alert cooldown in seconds"
// @Success 202 {object} models.MonitorStatus
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /monitors/video [post]
func (h *MonitorHandler) StartVideo(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	header, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "video file is required"})
		return
	}

	path := filepath.Join(h.uploadDir, "detectorx-upload-"+uuid.NewString()+filepath.Ext(header.Filename))
	if err := c.SaveUploadedFile(header, path); err != nil {
		logging.Error(c).Err(err).Msg("Failed to store uploaded video")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to store upload"})
		return
	}
	// runs after the request has returned, so it must not touch c
	release := func() {
		if err := h.uploadPolicy.ReleaseFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Temporary video left behind")
		}
	}

	src, err := streamcapture.OpenVideo(path, header.Filename)
	if err != nil {
		release()
		monitorError(c, err)
		return
	}

	settings, err := req.Apply(h.cfg, src.Describe())
	if err != nil {
		src.Close()
		release()
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	status, err := h.manager.Start(src, settings, release)
	if err != nil {
		src.Close()
		release()
		monitorError(c, err)
		return
	}

	logging.SetMonitorID(c, status.ID)
	logging.Info(c).Str("file", header.Filename).Int64("size", header.Size).Msg("Video monitor started")
	c.JSON(http.StatusAccepted, status)
}

// StartCamera godoc
// @Summary Monitor a live camera
// @Description Start processing a camera device or stream URL in the background
// @Tags monitors
// @Accept json
// @Produce json
// @Param request body CameraRequest true "Camera and settings"
// @Success 202 {object} models.MonitorStatus
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /monitors/camera [post]
func (h *MonitorHandler) StartCamera(c *gin.Context) {
	var req CameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	settings, err := req.Settings.Apply(h.cfg, "")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	src, err := streamcapture.OpenCamera(req.DeviceID)
	if err != nil {
		logging.Warn(c).Err(err).Str("device_id", req.DeviceID).Msg("Camera could not be opened")
		monitorError(c, err)
		return
	}
	settings.SourceDescription = src.Describe()

	status, err := h.manager.Start(src, settings, nil)
	if err != nil {
		src.Close()
		monitorError(c, err)
		return
	}

	logging.SetMonitorID(c, status.ID)
	logging.Info(c).Str("device_id", req.DeviceID).Msg("Camera monitor started")
	c.JSON(http.StatusAccepted, status)
}

// ListMonitors godoc
// @Summary List monitors
// @Tags monitors
// @Produce json
// @Success 200 {array} models.MonitorStatus
// @Router /monitors [get]
func (h *MonitorHandler) ListMonitors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"monitors": h.manager.List(),
	})
}

// GetMonitor godoc
// @Summary Get monitor status
// @Tags monitors
// @Produce json
// @Param id path string true "Monitor ID"
// @Success 200 {object} models.MonitorStatus
// @Failure 404 {object} ErrorResponse
// @Router /monitors/{id} [get]
func (h *MonitorHandler) GetMonitor(c *gin.Context) {
	status, err := h.manager.Get(c.Param("id"))
	if err != nil {
		monitorError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// StopMonitor godoc
// @Summary Stop a monitor
// @Description The monitor stops after the frame in progress has been processed
// @Tags monitors
// @Produce json
// @Param id path string true "Monitor ID"
// @Success 202 {object} models.MonitorStatus
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /monitors/{id}/stop [post]
func (h *MonitorHandler) StopMonitor(c *gin.Context) {
	id := c.Param("id")
	logging.SetMonitorID(c, id)

	status, err := h.manager.Stop(id)
	if err != nil {
		monitorError(c, err)
		return
	}
	logging.Info(c).Msg("Monitor stop requested")
	c.JSON(http.StatusAccepted, status)
}

// Stream godoc
// @Summary MJPEG preview
// @Description Live multipart JPEG stream of the latest annotated frame
// @Tags monitors
// @Produce multipart/x-mixed-replace
// @Param id path string true "Monitor ID"
// @Failure 404 {object} ErrorResponse
// @Router /monitors/{id}/stream [get]
func (h *MonitorHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	if !h.manager.Exists(id) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: monitor.ErrNotFound.Error()})
		return
	}
	h.mjpeg.StreamMJPEGHTTP(c.Writer, c.Request, id)
}

// Frame godoc
// @Summary Latest annotated frame
// @Tags monitors
// @Produce image/jpeg
// @Param id path string true "Monitor ID"
// @Failure 404 {object} ErrorResponse
// @Router /monitors/{id}/frame [get]
func (h *MonitorHandler) Frame(c *gin.Context) {
	frame, ok := h.mjpeg.Latest(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no frame available"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", frame)
}

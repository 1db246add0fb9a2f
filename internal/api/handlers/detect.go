package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gocv.io/x/gocv"

	"detectorx-worker-go/internal/config"
	"detectorx-worker-go/internal/logging"
	"detectorx-worker-go/internal/services/monitor"
	"detectorx-worker-go/internal/services/streamcapture"
)

// DetectHandler runs single images through the pipeline synchronously
type DetectHandler struct {
	cfg     *config.Config
	manager *monitor.Manager
}

func NewDetectHandler(cfg *config.Config, manager *monitor.Manager) *DetectHandler {
	return &DetectHandler{cfg: cfg, manager: manager}
}

type detectImageRequest struct {
	SettingsRequest
	IncludeImage bool `form:"include_image"`
}

// DetectImage godoc
// @Summary Detect fire and smoke in an image
// @Description Runs one uploaded image through detection and the alert policy and returns the frame report
// @Tags detect
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image file"
// @Param include_image formData bool false "Attach the annotated JPEG (base64)"
// @Success 200 {object} models.FrameReport
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /detect/image [post]
func (h *DetectHandler) DetectImage(c *gin.Context) {
	var req detectImageRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	header, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "image file is required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	img, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err != nil || img.Empty() {
		img.Close()
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "file is not a decodable image"})
		return
	}
	src := streamcapture.NewImageSource(img, header.Filename)

	settings, err := req.Apply(h.cfg, src.Describe())
	if err != nil {
		src.Close()
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	report, err := h.manager.ProcessImage(c.Request.Context(), src, settings, req.IncludeImage)
	if err != nil {
		logging.Error(c).Err(err).Msg("Image processing failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	logging.Info(c).
		Str("file", header.Filename).
		Strs("labels", report.Labels).
		Int("signals", len(report.Signals)).
		Msg("Image processed")
	c.JSON(http.StatusOK, report)
}

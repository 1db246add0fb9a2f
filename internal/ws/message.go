package ws

import (
	"encoding/base64"
	"time"

	"detectorx-worker-go/internal/models"
)

// FrameMessage is the per-frame broadcast sent to monitor subscribers
type FrameMessage struct {
	Type        string             `json:"type"` // "frame"
	MonitorID   string             `json:"monitor_id"`
	Timestamp   time.Time          `json:"timestamp"`
	FrameIndex  int64              `json:"frame_index"`
	Labels      []string           `json:"labels"`
	Detections  []models.Detection `json:"detections"`
	Signals     []models.Signal    `json:"signals"`
	DetectError string             `json:"detect_error,omitempty"`
	Frame       string             `json:"frame,omitempty"` // Base64 encoded JPEG frame
}

// NewFrameMessage converts a report; the JPEG is only embedded when withFrame is set
func NewFrameMessage(report models.FrameReport, withFrame bool) *FrameMessage {
	msg := &FrameMessage{
		Type:        "frame",
		MonitorID:   report.MonitorID,
		Timestamp:   report.ProcessedAt,
		FrameIndex:  report.FrameIndex,
		Labels:      report.Labels,
		Detections:  report.Detections,
		Signals:     report.Signals,
		DetectError: report.DetectError,
	}
	if withFrame && len(report.AnnotatedJPEG) > 0 {
		msg.Frame = base64.StdEncoding.EncodeToString(report.AnnotatedJPEG)
	}
	return msg
}

// ClosedMessage tells subscribers the monitor has no more frames
type ClosedMessage struct {
	Type      string    `json:"type"` // "closed"
	MonitorID string    `json:"monitor_id"`
	Timestamp time.Time `json:"timestamp"`
}

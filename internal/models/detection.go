package models

import (
	"strings"
	"time"
)

// Hazard labels produced by the fire/smoke model
const (
	LabelFire  = "fire"
	LabelSmoke = "smoke"
)

// DefaultClassNames is used when the detector reports class ids without names
var DefaultClassNames = map[int]string{
	0: LabelFire,
	1: LabelSmoke,
}

// IsQualifyingLabel reports whether a label is gated by the cooldown and may raise an alert
func IsQualifyingLabel(label string) bool {
	switch strings.ToLower(label) {
	case LabelFire, LabelSmoke:
		return true
	default:
		return false
	}
}

// BoundingBox is an axis-aligned box in pixel coordinates of the detector input
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns the box width, never negative
func (b BoundingBox) Width() int {
	if b.X2 < b.X1 {
		return 0
	}
	return b.X2 - b.X1
}

// Height returns the box height, never negative
func (b BoundingBox) Height() int {
	if b.Y2 < b.Y1 {
		return 0
	}
	return b.Y2 - b.Y1
}

// Detection represents one object found in a frame
type Detection struct {
	Label      string      `json:"label"`
	ClassID    int         `json:"class_id"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"bounding_box"`
}

// IsQualifying reports whether the detection's label is fire or smoke
func (d Detection) IsQualifying() bool {
	return IsQualifyingLabel(d.Label)
}

// DetectionParams are the per-call inference settings sent to the detector
type DetectionParams struct {
	Model      string  `json:"model"`
	Confidence float64 `json:"confidence"`
	IOU        float64 `json:"iou"`
	ImageSize  int     `json:"imgsz"`
	Augment    bool    `json:"augment"`
}

// DispatchStatus summarises how an alert dispatch ended
type DispatchStatus string

const (
	DispatchStatusAttempted     DispatchStatus = "attempted"
	DispatchStatusPersistFailed DispatchStatus = "persist_failed"
	DispatchStatusFailed        DispatchStatus = "failed"
)

// String returns the string representation of DispatchStatus
func (s DispatchStatus) String() string {
	return string(s)
}

// ChannelOutcome is the result of one notification channel for one dispatch
type ChannelOutcome struct {
	Channel string `json:"channel"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
}

// AlertEvent is published to the event bus and stored in the journal after every dispatch
type AlertEvent struct {
	AlertID          string           `json:"alert_id"`
	MonitorID        string           `json:"monitor_id,omitempty"`
	Label            string           `json:"label"`
	Confidence       float64          `json:"confidence"`
	Location         string           `json:"location"`
	Source           string           `json:"source"`
	Status           DispatchStatus   `json:"status"`
	AnalysisIncluded bool             `json:"analysis_included"`
	Channels         []ChannelOutcome `json:"channels"`
	Error            string           `json:"error,omitempty"`
	DispatchedAt     time.Time        `json:"dispatched_at"`
}

// PartitionKey keeps the events of one monitor in order on partitioned buses
func (e AlertEvent) PartitionKey() string {
	if e.MonitorID != "" {
		return e.MonitorID
	}
	return e.Label
}

// MessagePublisher interface for publishing alert events
type MessagePublisher interface {
	Publish(subject string, data interface{}) error
}

package models

import "time"

// SourceKind identifies where a monitor reads frames from
type SourceKind string

const (
	SourceKindImage  SourceKind = "image"
	SourceKindVideo  SourceKind = "video"
	SourceKindCamera SourceKind = "camera"
)

// String returns the string representation of SourceKind
func (k SourceKind) String() string {
	return string(k)
}

// IsValid checks if the source kind is known
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceKindImage, SourceKindVideo, SourceKindCamera:
		return true
	default:
		return false
	}
}

// MonitorState represents the lifecycle state of a monitor
type MonitorState string

const (
	MonitorStateRunning  MonitorState = "running"
	MonitorStateStopping MonitorState = "stopping"
	MonitorStateFinished MonitorState = "finished"
	MonitorStateFailed   MonitorState = "failed"
)

// MonitorSettings is the immutable configuration for one monitoring run
type MonitorSettings struct {
	Detection         DetectionParams `json:"detection"`
	EnhanceContrast   bool            `json:"enhance_contrast"`
	Cooldown          time.Duration   `json:"cooldown"`
	LocationName      string          `json:"location_name"`
	SourceDescription string          `json:"source_description"`
	TelegramEnabled   bool            `json:"telegram_enabled"`
	WhatsAppEnabled   bool            `json:"whatsapp_enabled"`
	AnalysisEnabled   bool            `json:"analysis_enabled"`
}

// ChannelEnabled reports whether the named notification channel is switched on for this run
func (s MonitorSettings) ChannelEnabled(name string) bool {
	switch name {
	case ChannelTelegram:
		return s.TelegramEnabled
	case ChannelWhatsApp:
		return s.WhatsAppEnabled
	default:
		return false
	}
}

// Notification channel names
const (
	ChannelTelegram = "telegram"
	ChannelWhatsApp = "whatsapp"
)

// SignalKind describes what happened to one detection in a frame
type SignalKind string

const (
	SignalDispatched    SignalKind = "dispatched"
	SignalCooldown      SignalKind = "cooldown"
	SignalInformational SignalKind = "informational"
)

// Signal is the per-detection outcome reported for a frame
type Signal struct {
	Kind       SignalKind     `json:"kind"`
	Label      string         `json:"label"`
	Confidence float64        `json:"confidence"`
	AlertID    string         `json:"alert_id,omitempty"`
	Status     DispatchStatus `json:"status,omitempty"`
}

// FrameReport summarises the processing of a single frame
type FrameReport struct {
	MonitorID   string      `json:"monitor_id"`
	FrameIndex  int64       `json:"frame_index"`
	ProcessedAt time.Time   `json:"processed_at"`
	Labels      []string    `json:"labels"`
	Detections  []Detection `json:"detections"`
	Signals     []Signal    `json:"signals"`
	DetectError string      `json:"detect_error,omitempty"`
	// AnnotatedJPEG is filled only when the caller asked for the rendered frame
	AnnotatedJPEG []byte `json:"annotated_jpeg,omitempty"`
}

// MonitorStatus is the externally visible state of a monitor
type MonitorStatus struct {
	ID           string          `json:"id"`
	Kind         SourceKind      `json:"kind"`
	Source       string          `json:"source"`
	State        MonitorState    `json:"state"`
	Settings     MonitorSettings `json:"settings"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	FramesRead   int64           `json:"frames_read"`
	AlertsSent   int64           `json:"alerts_sent"`
	LastLabels   []string        `json:"last_labels"`
	LastFrameAt  *time.Time      `json:"last_frame_at,omitempty"`
	Error        string          `json:"error,omitempty"`
	StreamURL    string          `json:"stream_url"`
	WebSocketURL string          `json:"websocket_url"`
}

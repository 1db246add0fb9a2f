package models

import "time"

// TimestampLayout is the local time format used in alert messages
const TimestampLayout = "2006-01-02 15:04:05"

// AlertMessage is the content handed to every notification channel for one dispatch
type AlertMessage struct {
	DetectionType string  `json:"detection_type"`
	Location      string  `json:"location"`
	SourceInfo    string  `json:"source_info"`
	Confidence    float64 `json:"confidence"`
	Timestamp     string  `json:"timestamp"`
	AnalysisText  string  `json:"analysis_text,omitempty"`
}

// NewAlertMessage builds the message for a detection raised at the given time
func NewAlertMessage(d Detection, location, source string, at time.Time, analysis string) AlertMessage {
	return AlertMessage{
		DetectionType: d.Label,
		Location:      location,
		SourceInfo:    source,
		Confidence:    d.Confidence,
		Timestamp:     at.Format(TimestampLayout),
		AnalysisText:  analysis,
	}
}

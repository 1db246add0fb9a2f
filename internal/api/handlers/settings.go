package handlers

import (
	"fmt"
	"time"

	"detectorx-worker-go/internal/config"
	"detectorx-worker-go/internal/models"
)

// MaxCooldownSeconds bounds the per-request cooldown override
const MaxCooldownSeconds = 3600

// SettingsRequest overrides the configured monitor defaults. Omitted fields keep the default.
type SettingsRequest struct {
	Model           *string  `json:"model" form:"model"`
	Confidence      *float64 `json:"confidence" form:"confidence" binding:"omitempty,gte=0,lte=1"`
	IOU             *float64 `json:"iou" form:"iou" binding:"omitempty,gte=0,lte=1"`
	ImageSize       *int     `json:"imgsz" form:"imgsz" binding:"omitempty,gt=0"`
	Augment         *bool    `json:"augment" form:"augment"`
	EnhanceContrast *bool    `json:"clahe" form:"clahe"`
	CooldownSeconds *float64 `json:"cooldown_seconds" form:"cooldown_seconds" binding:"omitempty,gte=0,lte=3600"`
	Location        *string  `json:"location" form:"location"`
	Telegram        *bool    `json:"telegram" form:"telegram"`
	WhatsApp        *bool    `json:"whatsapp" form:"whatsapp"`
	Analysis        *bool    `json:"analysis" form:"analysis"`
}

// Apply merges the overrides into the configured defaults
func (r SettingsRequest) Apply(cfg *config.Config, source string) (models.MonitorSettings, error) {
	s := cfg.MonitorSettings(source)

	if r.Model != nil {
		s.Detection.Model = *r.Model
	}
	if r.Confidence != nil {
		s.Detection.Confidence = *r.Confidence
	}
	if r.IOU != nil {
		s.Detection.IOU = *r.IOU
	}
	if r.ImageSize != nil {
		if err := config.ValidateImageSize(*r.ImageSize); err != nil {
			return s, err
		}
		s.Detection.ImageSize = *r.ImageSize
	}
	if r.Augment != nil {
		s.Detection.Augment = *r.Augment
	}
	if r.EnhanceContrast != nil {
		s.EnhanceContrast = *r.EnhanceContrast
	}
	if r.CooldownSeconds != nil {
		if c := *r.CooldownSeconds; !(c >= 0 && c <= MaxCooldownSeconds) {
			return s, fmt.Errorf("cooldown_seconds must be within [0, %d], got %v", MaxCooldownSeconds, *r.CooldownSeconds)
		}
		s.Cooldown = time.Duration(*r.CooldownSeconds * float64(time.Second))
	}
	if r.Location != nil && *r.Location != "" {
		s.LocationName = *r.Location
	}
	if r.Telegram != nil {
		s.TelegramEnabled = *r.Telegram
	}
	if r.WhatsApp != nil {
		s.WhatsAppEnabled = *r.WhatsApp
	}
	if r.Analysis != nil {
		s.AnalysisEnabled = *r.Analysis
	}

	if s.Detection.Confidence < 0 || s.Detection.Confidence > 1 {
		return s, fmt.Errorf("confidence must be within [0, 1], got %v", s.Detection.Confidence)
	}
	return s, nil
}

package main

import (
	"io"
	"testing"
	"time"
)

func TestParseFlagsDefaults(t *testing.T) {
	o, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if o.Confidence != 0.20 || o.IOU != 0.45 || o.ImageSize != 640 || o.settings().Cooldown != 10*time.Second {
		t.Fatalf("defaults = %+v", o)
	}
	if o.Location != "CLI-Feed-DetectorX" || o.Telegram || o.WhatsApp || o.Gemini {
		t.Fatalf("defaults = %+v", o)
	}
	if target, ok := o.cameraTarget(); !ok || target != "0" {
		t.Fatalf("camera target = %q %v", target, ok)
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	o, err := parseFlags([]string{
		"--source", "clips/gudang.mp4", "--confidence", "0.5", "--imgsz", "320",
		"--clahe", "--cooldown", "30", "--telegram", "--location", "Gudang",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if _, ok := o.cameraTarget(); ok {
		t.Fatal("file path must not be treated as a camera")
	}
	s := o.settings()
	if s.Detection.Confidence != 0.5 || s.Detection.ImageSize != 320 || !s.EnhanceContrast {
		t.Fatalf("settings = %+v", s)
	}
	if s.Cooldown != 30*time.Second || !s.TelegramEnabled || s.WhatsAppEnabled || s.LocationName != "Gudang" {
		t.Fatalf("settings = %+v", s)
	}
}

func TestParseFlagsCameraIndex(t *testing.T) {
	o, err := parseFlags([]string{"--source", "2"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if target, ok := o.cameraTarget(); !ok || target != "2" {
		t.Fatalf("camera target = %q %v", target, ok)
	}
}

func TestParseFlagsRejectsInvalidValues(t *testing.T) {
	tests := [][]string{
		{"--confidence", "1.2"},
		{"--iou", "-0.1"},
		{"--imgsz", "100"},
		{"--imgsz", "0"},
		{"--model", " "},
		{"--cooldown", "-1"},
		{"--cooldown", "30s"},
		{"--cooldown", "99999999999999"},
		{"--confidence", "high"},
	}
	for _, args := range tests {
		if _, err := parseFlags(args, io.Discard); err == nil {
			t.Errorf("parseFlags(%v) should fail", args)
		}
	}
}

package helpers

import (
	"testing"

	"gocv.io/x/gocv"

	"detectorx-worker-go/internal/models"
)

func TestNormalizeChannels(t *testing.T) {
	tests := []struct {
		name    string
		matType gocv.MatType
		ok      bool
	}{
		{"grayscale", gocv.MatTypeCV8UC1, true},
		{"bgr", gocv.MatTypeCV8UC3, true},
		{"bgra", gocv.MatTypeCV8UC4, true},
		{"two channel", gocv.MatTypeCV8UC2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := gocv.NewMatWithSize(20, 30, tt.matType)
			defer in.Close()

			out, ok := NormalizeChannels(in)
			defer out.Close()
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && (out.Channels() != 3 || out.Rows() != 20 || out.Cols() != 30) {
				t.Fatalf("out = %dx%dx%d", out.Rows(), out.Cols(), out.Channels())
			}
		})
	}
}

func TestNormalizeEmpty(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	out, ok := NormalizeChannels(empty)
	defer out.Close()
	if ok {
		t.Fatal("empty frame must be unsupported")
	}
}

func TestEncodeAndDraw(t *testing.T) {
	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	DrawDetections(&frame, []models.Detection{
		{Label: "fire", Confidence: 0.9, Box: models.BoundingBox{X1: 10, Y1: 10, X2: 60, Y2: 70}},
		{Label: "person", Confidence: 0.5, Box: models.BoundingBox{X1: 0, Y1: 0, X2: 20, Y2: 20}},
	})

	data, err := EncodeJPEG(frame, MediumQuality)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatal("not a JPEG")
	}
}

package streamcapture

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"detectorx-worker-go/internal/models"
)

func TestOpenImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.png")
	img := gocv.NewMatWithSize(12, 16, gocv.MatTypeCV8UC4)
	defer img.Close()
	if !gocv.IMWrite(path, img) {
		t.Fatal("failed to write fixture")
	}

	src, err := Open(models.SourceKindImage, path, "upload.png")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if src.Describe() != "Image: upload.png" || src.Kind() != models.SourceKindImage {
		t.Fatalf("describe = %q kind = %s", src.Describe(), src.Kind())
	}

	frame := gocv.NewMat()
	defer frame.Close()
	if err := src.Read(&frame); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if frame.Channels() != 4 {
		t.Fatalf("alpha channel must be preserved, got %d channels", frame.Channels())
	}
	if err := src.Read(&frame); !errors.Is(err, io.EOF) {
		t.Fatalf("second read = %v, want EOF", err)
	}
}

func TestOpenFailures(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	tests := []struct {
		kind   models.SourceKind
		target string
	}{
		{models.SourceKindImage, missing + ".jpg"},
		{models.SourceKindVideo, missing + ".mp4"},
		{models.SourceKind("ftp"), "x"},
	}
	for _, tt := range tests {
		if _, err := Open(tt.kind, tt.target, ""); !errors.Is(err, ErrSourceOpen) {
			t.Errorf("Open(%s, %s) = %v, want ErrSourceOpen", tt.kind, tt.target, err)
		}
	}
}

func TestMockSource(t *testing.T) {
	src := NewMockSource("File: test.mp4",
		gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3),
		gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3),
	)
	defer src.Close()

	frame := gocv.NewMat()
	defer frame.Close()
	for i := 0; i < 2; i++ {
		if err := src.Read(&frame); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	if err := src.Read(&frame); !errors.Is(err, io.EOF) {
		t.Fatalf("want EOF, got %v", err)
	}
	if src.Position() != 2 {
		t.Fatalf("position = %d", src.Position())
	}
}

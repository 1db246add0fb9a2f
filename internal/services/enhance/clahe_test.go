package enhance

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestEnhanceKeepsShape(t *testing.T) {
	frame := gocv.NewMatWithSize(64, 48, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.SetTo(gocv.Scalar{Val1: 40, Val2: 80, Val3: 120})

	out := NewCLAHE().Enhance(frame)
	defer out.Close()

	if out.Rows() != 64 || out.Cols() != 48 || out.Channels() != 3 {
		t.Fatalf("out = %dx%dx%d", out.Rows(), out.Cols(), out.Channels())
	}
}

func TestEnhancePassesThroughUnsupported(t *testing.T) {
	gray := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC1)
	defer gray.Close()

	out := NewCLAHE().Enhance(gray)
	defer out.Close()
	if out.Channels() != 1 || out.Rows() != 10 {
		t.Fatal("unsupported frame must come back unchanged")
	}
}

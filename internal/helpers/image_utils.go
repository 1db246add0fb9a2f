package helpers

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"detectorx-worker-go/internal/models"
)

const (
	// JPEG quality settings
	HighQuality   = 95
	MediumQuality = 75
)

var (
	fireColor  = color.RGBA{R: 255, G: 64, B: 0, A: 255}
	smokeColor = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	otherColor = color.RGBA{R: 0, G: 200, B: 255, A: 255}
	textColor  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// NormalizeChannels returns a 3-channel BGR copy of frame. Grayscale and BGRA inputs are
// converted; any other layout is reported as unsupported and no Mat is allocated.
// The caller owns the returned Mat.
func NormalizeChannels(frame gocv.Mat) (gocv.Mat, bool) {
	if frame.Empty() {
		return gocv.NewMat(), false
	}

	out := gocv.NewMat()
	switch frame.Channels() {
	case 1:
		gocv.CvtColor(frame, &out, gocv.ColorGrayToBGR)
	case 3:
		frame.CopyTo(&out)
	case 4:
		gocv.CvtColor(frame, &out, gocv.ColorBGRAToBGR)
	default:
		out.Close()
		return gocv.NewMat(), false
	}
	return out, true
}

// EncodeJPEG encodes a frame and returns a copy of the bytes owned by the caller
func EncodeJPEG(frame gocv.Mat, quality int) ([]byte, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()

	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// DrawDetections draws a labelled box for every detection onto frame in place
func DrawDetections(frame *gocv.Mat, detections []models.Detection) {
	for _, d := range detections {
		c := colorForLabel(d.Label)
		rect := image.Rect(d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
		gocv.Rectangle(frame, rect, c, 2)

		caption := fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
		size := gocv.GetTextSize(caption, gocv.FontHersheySimplex, 0.6, 2)
		top := max(d.Box.Y1-size.Y-6, 0)
		bg := image.Rect(d.Box.X1, top, d.Box.X1+size.X+6, top+size.Y+6)
		gocv.Rectangle(frame, bg, c, -1)
		gocv.PutText(frame, caption, image.Pt(d.Box.X1+3, top+size.Y+2), gocv.FontHersheySimplex, 0.6, textColor, 2)
	}
}

func colorForLabel(label string) color.RGBA {
	switch label {
	case models.LabelFire:
		return fireColor
	case models.LabelSmoke:
		return smokeColor
	default:
		return otherColor
	}
}

// DrawPlaceholder renders a grey frame with two lines of text, used before the first real frame
func DrawPlaceholder(width, height int, title, subtitle string) gocv.Mat {
	m := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.Scalar{Val1: 64, Val2: 64, Val3: 64, Val4: 0})
	gocv.PutText(&m, title, image.Pt(20, height/2), gocv.FontHersheySimplex, 1.0, textColor, 2)
	gocv.PutText(&m, subtitle, image.Pt(20, height/2+40), gocv.FontHersheySimplex, 0.8, textColor, 2)
	return m
}

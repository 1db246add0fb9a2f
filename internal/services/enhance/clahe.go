package enhance

import (
	"image"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// CLAHE equalizes contrast on the lightness channel of a BGR frame
type CLAHE struct {
	clipLimit float64
	tileGrid  image.Point
}

func NewCLAHE() *CLAHE {
	return &CLAHE{clipLimit: 2.0, tileGrid: image.Pt(8, 8)}
}

// Enhance returns a new Mat owned by the caller. Any frame that is not 3-channel,
// or any failure along the way, yields an unchanged copy.
func (c *CLAHE) Enhance(frame gocv.Mat) (out gocv.Mat) {
	if frame.Empty() || frame.Channels() != 3 {
		return frame.Clone()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("Contrast enhancement failed, using original frame")
			out = frame.Clone()
		}
	}()

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(frame, &lab, gocv.ColorBGRToLab)

	channels := gocv.Split(lab)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()
	if len(channels) != 3 {
		return frame.Clone()
	}

	clahe := gocv.NewCLAHEWithParams(c.clipLimit, c.tileGrid)
	defer clahe.Close()

	equalized := gocv.NewMat()
	clahe.Apply(channels[0], &equalized)
	channels[0].Close()
	channels[0] = equalized

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(channels, &merged)

	out = gocv.NewMat()
	gocv.CvtColor(merged, &out, gocv.ColorLabToBGR)
	return out
}

package monitor

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gocv.io/x/gocv"

	"detectorx-worker-go/internal/helpers"
	"detectorx-worker-go/internal/models"
	"detectorx-worker-go/internal/services/alerting"
	"detectorx-worker-go/internal/services/detection"
	"detectorx-worker-go/internal/services/streamcapture"
)

// Detector runs inference on a single frame
type Detector interface {
	Detect(ctx context.Context, frame gocv.Mat, params models.DetectionParams) (*detection.Result, error)
}

// Enhancer returns a contrast-adjusted copy of a frame
type Enhancer interface {
	Enhance(frame gocv.Mat) gocv.Mat
}

// Processor applies the alert policy to one detection
type Processor interface {
	Process(ctx context.Context, req alerting.Request) models.Signal
}

// Observer receives one report per processed frame. Implementations must not block.
type Observer interface {
	ObserveFrame(report models.FrameReport)
}

// ObserverFunc adapts a plain function to Observer
type ObserverFunc func(report models.FrameReport)

func (f ObserverFunc) ObserveFrame(report models.FrameReport) { f(report) }

// Loop drives one source through detection and the alert policy, one frame at a time
type Loop struct {
	ID        string
	Source    streamcapture.Source
	Settings  models.MonitorSettings
	Detector  Detector
	Enhancer  Enhancer
	Processor Processor
	Observers []Observer
	// RenderFrames attaches the annotated JPEG to every report
	RenderFrames bool
	Logger       zerolog.Logger
}

// Run reads until the source is exhausted or ctx is cancelled. Cancellation is only
// observed between frames; a frame that has been read is always fully processed.
// The source is not closed.
func (l *Loop) Run(ctx context.Context) error {
	frame := gocv.NewMat()
	defer frame.Close()

	var index int64
	for {
		if err := ctx.Err(); err != nil {
			l.Logger.Info().Int64("frames", index).Msg("Monitor stopped at frame boundary")
			return nil
		}

		if err := l.Source.Read(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				l.Logger.Info().Int64("frames", index).Err(unwrapEOF(err)).Msg("End of stream")
				return nil
			}
			return err
		}

		report := l.ProcessFrame(ctx, index, frame)
		for _, o := range l.Observers {
			o.ObserveFrame(report)
		}
		index++
	}
}

func unwrapEOF(err error) error {
	if err == io.EOF {
		return nil
	}
	return err
}

// ProcessFrame runs enhancement, detection and the alert policy for one frame.
// A detector error is treated as a frame without detections.
func (l *Loop) ProcessFrame(ctx context.Context, index int64, frame gocv.Mat) models.FrameReport {
	report := models.FrameReport{
		MonitorID:   l.ID,
		FrameIndex:  index,
		ProcessedAt: time.Now(),
		Labels:      []string{},
		Detections:  []models.Detection{},
		Signals:     []models.Signal{},
	}

	input := frame
	if l.Settings.EnhanceContrast && l.Enhancer != nil {
		enhanced := l.Enhancer.Enhance(frame)
		defer enhanced.Close()
		input = enhanced
	}

	res, err := l.Detector.Detect(ctx, input, l.Settings.Detection)
	if err != nil {
		l.Logger.Warn().Err(err).Int64("frame", index).Msg("Detection failed, continuing with next frame")
		report.DetectError = err.Error()
		if l.RenderFrames {
			report.AnnotatedJPEG = renderFrame(input)
		}
		return report
	}
	defer res.Close()

	report.Detections = res.Detections
	report.Labels = res.Labels()

	for _, d := range res.Detections {
		signal := l.Processor.Process(ctx, alerting.Request{
			MonitorID: l.ID,
			Detection: d,
			Frame:     res.Annotated,
			Settings:  l.Settings,
		})
		report.Signals = append(report.Signals, signal)
	}

	if qualifying := lo.Filter(report.Signals, func(s models.Signal, _ int) bool {
		return s.Kind != models.SignalInformational
	}); len(qualifying) > 0 {
		l.Logger.Debug().
			Int64("frame", index).
			Int("qualifying", len(qualifying)).
			Int("dispatched", lo.CountBy(qualifying, func(s models.Signal) bool { return s.Kind == models.SignalDispatched })).
			Msg("Qualifying detections processed")
	}

	if l.RenderFrames {
		report.AnnotatedJPEG = renderFrame(res.Annotated)
	}
	return report
}

func renderFrame(frame gocv.Mat) []byte {
	normalized, ok := helpers.NormalizeChannels(frame)
	defer normalized.Close()
	if !ok {
		return nil
	}
	data, err := helpers.EncodeJPEG(normalized, helpers.MediumQuality)
	if err != nil {
		return nil
	}
	return data
}

package alerting

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"detectorx-worker-go/internal/models"
	"detectorx-worker-go/internal/services/analysis"
)

// Analyzer produces a free-text hazard assessment for an image
type Analyzer interface {
	Available() bool
	Analyze(ctx context.Context, imagePath, prompt string) (string, error)
}

// Channel is one notification destination
type Channel interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg models.AlertMessage, imagePath string) error
}

// ArtifactWriter persists the annotated frame for the lifetime of one dispatch
type ArtifactWriter interface {
	Persist(frame gocv.Mat) (string, error)
	Release(path string) error
}

// Journal stores dispatch outcomes
type Journal interface {
	Record(ctx context.Context, event models.AlertEvent) error
}

// PromptFunc builds the analysis prompt from label, source description and location
type PromptFunc func(label, source, location string) string

// Options wires the dispatcher's collaborators. Analyzer, Publisher and Journal may be nil.
type Options struct {
	Cooldown  *CooldownTracker
	Artifacts ArtifactWriter
	Analyzer  Analyzer
	Channels  []Channel
	Publisher models.MessagePublisher
	Subject   string
	Journal   Journal
	Prompt    PromptFunc
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Request is one qualifying detection together with the frame it was found in
type Request struct {
	MonitorID string
	Detection models.Detection
	Frame     gocv.Mat
	Settings  models.MonitorSettings
}

// Result describes what a dispatch did
type Result struct {
	AlertID          string
	Label            string
	Status           models.DispatchStatus
	AnalysisIncluded bool
	Channels         []models.ChannelOutcome
	Err              string
	StartedAt        time.Time
}

// Dispatcher turns qualifying detections into notifications under a per-label cooldown
type Dispatcher struct {
	opts   Options
	logger zerolog.Logger

	// gate serializes check, dispatch and record across monitors
	gate sync.Mutex
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.Cooldown == nil {
		opts.Cooldown = NewCooldownTracker()
	}
	if opts.Artifacts == nil {
		opts.Artifacts = NewArtifactStore("", ArtifactReleasePolicy)
	}
	if opts.Prompt == nil {
		opts.Prompt = analysis.ServicePrompt
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	names := make([]string, 0, len(opts.Channels))
	for _, ch := range opts.Channels {
		if ch.Enabled() {
			names = append(names, ch.Name())
		}
	}
	opts.Logger.Info().
		Strs("channels", names).
		Bool("analysis", opts.Analyzer != nil && opts.Analyzer.Available()).
		Bool("event_bus", opts.Publisher != nil).
		Bool("journal", opts.Journal != nil).
		Msg("Alert dispatcher initialized")

	return &Dispatcher{opts: opts, logger: opts.Logger}
}

// Cooldown exposes the tracker shared by every monitor using this dispatcher
func (d *Dispatcher) Cooldown() *CooldownTracker {
	return d.opts.Cooldown
}

// Process applies the alert policy to one detection and reports what happened.
// Only fire and smoke are gated; anything else is informational.
func (d *Dispatcher) Process(ctx context.Context, req Request) models.Signal {
	label := strings.ToLower(req.Detection.Label)
	signal := models.Signal{Label: label, Confidence: req.Detection.Confidence}

	if !models.IsQualifyingLabel(label) {
		signal.Kind = models.SignalInformational
		return signal
	}

	d.gate.Lock()
	defer d.gate.Unlock()

	if !d.opts.Cooldown.CanFire(label, d.opts.Now(), req.Settings.Cooldown) {
		signal.Kind = models.SignalCooldown
		return signal
	}

	res := d.Dispatch(ctx, req)
	signal.Kind = models.SignalDispatched
	signal.AlertID = res.AlertID
	signal.Status = res.Status
	return signal
}

// Dispatch sends one alert without consulting the cooldown. The cooldown is always
// recorded with the dispatch start time, whatever the outcome. The caller's cancellation
// does not interrupt a dispatch in flight.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (res Result) {
	ctx = context.WithoutCancel(ctx)
	start := d.opts.Now()
	label := strings.ToLower(req.Detection.Label)
	res = Result{
		AlertID:   uuid.NewString(),
		Label:     label,
		StartedAt: start,
	}

	logger := d.logger.With().
		Str("alert_id", res.AlertID).
		Str("monitor_id", req.MonitorID).
		Str("label", label).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Alert dispatch panicked")
			res.Status = models.DispatchStatusFailed
			res.Err = fmt.Sprint(r)
		}
		d.opts.Cooldown.RecordFired(label, start)
		d.report(ctx, req, res)
	}()

	path, err := d.opts.Artifacts.Persist(req.Frame)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist annotated frame, no channel contacted")
		res.Status = models.DispatchStatusPersistFailed
		res.Err = err.Error()
		return res
	}
	defer func() {
		if err := d.opts.Artifacts.Release(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Annotated frame left behind")
		}
	}()

	analysisText := d.analyze(ctx, logger, req, path)
	msg := models.NewAlertMessage(req.Detection, req.Settings.LocationName, req.Settings.SourceDescription, start, analysisText)
	res.AnalysisIncluded = analysisText != ""
	res.Channels = d.notify(ctx, logger, req.Settings, msg, path)
	res.Status = models.DispatchStatusAttempted

	logger.Info().
		Float64("confidence", req.Detection.Confidence).
		Int("channels", len(res.Channels)).
		Bool("analysis", res.AnalysisIncluded).
		Msg("Alert dispatched")
	return res
}

func (d *Dispatcher) analyze(ctx context.Context, logger zerolog.Logger, req Request, path string) string {
	if !req.Settings.AnalysisEnabled || d.opts.Analyzer == nil || !d.opts.Analyzer.Available() {
		return ""
	}

	prompt := d.opts.Prompt(strings.ToLower(req.Detection.Label), req.Settings.SourceDescription, req.Settings.LocationName)
	text, err := d.opts.Analyzer.Analyze(ctx, path, prompt)
	if err != nil {
		logger.Warn().Err(err).Msg("Hazard analysis unavailable, sending alert without it")
		return ""
	}
	return strings.TrimSpace(text)
}

// notify runs every enabled channel concurrently; one channel failing or panicking
// never prevents the others from being attempted.
func (d *Dispatcher) notify(ctx context.Context, logger zerolog.Logger, settings models.MonitorSettings, msg models.AlertMessage, path string) []models.ChannelOutcome {
	var active []Channel
	for _, ch := range d.opts.Channels {
		if ch.Enabled() && settings.ChannelEnabled(ch.Name()) {
			active = append(active, ch)
		}
	}

	outcomes := make([]models.ChannelOutcome, len(active))
	var wg sync.WaitGroup
	for i, ch := range active {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			outcomes[i] = models.ChannelOutcome{Channel: ch.Name()}
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Interface("panic", r).Str("channel", ch.Name()).Msg("Notification channel panicked")
					outcomes[i].Sent = false
					outcomes[i].Error = fmt.Sprint(r)
				}
			}()

			if err := ch.Send(ctx, msg, path); err != nil {
				logger.Error().Err(err).Str("channel", ch.Name()).Msg("Notification failed")
				outcomes[i].Error = err.Error()
				return
			}
			outcomes[i].Sent = true
		}(i, ch)
	}
	wg.Wait()
	return outcomes
}

// report publishes the outcome to the event bus and the journal. Failures are logged only.
func (d *Dispatcher) report(ctx context.Context, req Request, res Result) {
	event := models.AlertEvent{
		AlertID:          res.AlertID,
		MonitorID:        req.MonitorID,
		Label:            res.Label,
		Confidence:       req.Detection.Confidence,
		Location:         req.Settings.LocationName,
		Source:           req.Settings.SourceDescription,
		Status:           res.Status,
		AnalysisIncluded: res.AnalysisIncluded,
		Channels:         res.Channels,
		Error:            res.Err,
		DispatchedAt:     res.StartedAt,
	}

	if d.opts.Publisher != nil {
		if err := d.opts.Publisher.Publish(d.opts.Subject, event); err != nil {
			log.Warn().Err(err).Str("alert_id", res.AlertID).Msg("Failed to publish alert event")
		}
	}
	if d.opts.Journal != nil {
		if err := d.opts.Journal.Record(ctx, event); err != nil {
			log.Warn().Err(err).Str("alert_id", res.AlertID).Msg("Failed to journal alert event")
		}
	}
}

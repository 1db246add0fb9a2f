package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"detectorx-worker-go/internal/config"
	"detectorx-worker-go/internal/logging"
	"detectorx-worker-go/internal/models"
	"detectorx-worker-go/internal/services"
	"detectorx-worker-go/internal/services/alerting"
	"detectorx-worker-go/internal/services/analysis"
	"detectorx-worker-go/internal/services/detection"
	"detectorx-worker-go/internal/services/enhance"
	"detectorx-worker-go/internal/services/journal"
	"detectorx-worker-go/internal/services/monitor"
	"detectorx-worker-go/internal/services/streamcapture"
)

type options struct {
	Source     string
	Model      string
	Confidence float64
	IOU        float64
	ImageSize  int
	Augment    bool
	CLAHE      bool
	Cooldown   int
	Telegram   bool
	WhatsApp   bool
	Gemini     bool
	Location   string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.Source, "source", "camera", "Video path, camera index, or \"camera\" for device 0")
	fs.StringVar(&o.Model, "model", "best.pt", "Model name sent to the detector")
	fs.Float64Var(&o.Confidence, "confidence", 0.20, "Confidence threshold (0-1)")
	fs.Float64Var(&o.IOU, "iou", 0.45, "IoU threshold (0-1)")
	fs.IntVar(&o.ImageSize, "imgsz", 640, "Inference image size, multiple of 32")
	fs.BoolVar(&o.Augment, "augment", false, "Test-time augmentation")
	fs.BoolVar(&o.CLAHE, "clahe", false, "Apply CLAHE contrast enhancement")
	fs.IntVar(&o.Cooldown, "cooldown", 10, "Per-label alert cooldown in seconds")
	fs.BoolVar(&o.Telegram, "telegram", false, "Send Telegram alerts")
	fs.BoolVar(&o.WhatsApp, "whatsapp", false, "Send WhatsApp alerts")
	fs.BoolVar(&o.Gemini, "gemini", false, "Attach Gemini hazard analysis")
	fs.StringVar(&o.Location, "location", "CLI-Feed-DetectorX", "Location name used in alerts")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, o.validate()
}

func (o options) validate() error {
	var errs []error
	if strings.TrimSpace(o.Source) == "" {
		errs = append(errs, errors.New("--source must not be empty"))
	}
	if strings.TrimSpace(o.Model) == "" {
		errs = append(errs, errors.New("--model must not be empty"))
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		errs = append(errs, fmt.Errorf("--confidence must be within [0,1], got %v", o.Confidence))
	}
	if o.IOU < 0 || o.IOU > 1 {
		errs = append(errs, fmt.Errorf("--iou must be within [0,1], got %v", o.IOU))
	}
	if err := config.ValidateImageSize(o.ImageSize); err != nil {
		errs = append(errs, fmt.Errorf("--imgsz: %w", err))
	}
	if o.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("--cooldown must not be negative, got %d", o.Cooldown))
	}
	if int64(o.Cooldown) > math.MaxInt64/int64(time.Second) {
		errs = append(errs, fmt.Errorf("--cooldown too large, got %d", o.Cooldown))
	}
	return errors.Join(errs...)
}

// cameraTarget maps "camera" to device 0 and passes numeric indices through
func (o options) cameraTarget() (string, bool) {
	if strings.EqualFold(o.Source, "camera") {
		return "0", true
	}
	if _, err := strconv.Atoi(o.Source); err == nil {
		return o.Source, true
	}
	return "", false
}

func (o options) settings() models.MonitorSettings {
	return models.MonitorSettings{
		Detection: models.DetectionParams{
			Model:      o.Model,
			Confidence: o.Confidence,
			IOU:        o.IOU,
			ImageSize:  o.ImageSize,
			Augment:    o.Augment,
		},
		EnhanceContrast: o.CLAHE,
		Cooldown:        time.Duration(o.Cooldown) * time.Second,
		LocationName:    o.Location,
		TelegramEnabled: o.Telegram,
		WhatsAppEnabled: o.WhatsApp,
		AnalysisEnabled: o.Gemini,
	}
}

func openSource(o options) (streamcapture.Source, error) {
	if target, ok := o.cameraTarget(); ok {
		return streamcapture.OpenCamera(target)
	}
	return streamcapture.OpenVideo(o.Source, "")
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Credentials and endpoints still come from .env and the environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(cfg)

	if err := run(opts, cfg); err != nil {
		log.Error().Err(err).Msg("Detection run failed")
		os.Exit(1)
	}
}

func run(opts options, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := openSource(opts)
	if err != nil {
		return err
	}
	defer src.Close()

	settings := opts.settings()
	settings.SourceDescription = src.Describe()

	detector := detection.NewService(cfg.DetectorURL, cfg.DetectorTimeout)
	defer detector.Shutdown(context.Background())

	dispatchOpts := alerting.Options{
		Artifacts: alerting.NewArtifactStore("", alerting.ReleasePolicy{MaxAttempts: cfg.ArtifactRetries, Backoff: cfg.ArtifactBackoff}),
		Channels:  services.NewChannels(cfg, services.NewImageHost(ctx, cfg)),
		Prompt:    analysis.CLIPrompt,
		Logger:    logging.NewServiceLogger(cfg, "alerting"),
	}
	if opts.Gemini {
		analyzer, err := analysis.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.AnalysisTimeout)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini unavailable, alerts will be sent without analysis")
		} else {
			dispatchOpts.Analyzer = analyzer
		}
	}
	if cfg.JournalPath != "" {
		store, err := journal.New(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open alert journal: %w", err)
		}
		defer store.Close()
		dispatchOpts.Journal = store
	}

	var frames, alerts int64
	runID := uuid.NewString()
	loop := &monitor.Loop{
		ID:        runID,
		Source:    src,
		Settings:  settings,
		Detector:  detector,
		Enhancer:  enhance.NewCLAHE(),
		Processor: alerting.NewDispatcher(dispatchOpts),
		Observers: []monitor.Observer{monitor.ObserverFunc(func(r models.FrameReport) {
			frames++
			alerts += int64(lo.CountBy(r.Signals, func(s models.Signal) bool { return s.Kind == models.SignalDispatched }))
		})},
		Logger: logging.WithMonitor(logging.NewServiceLogger(cfg, "detect"), runID),
	}

	log.Info().
		Str("source", settings.SourceDescription).
		Str("model", opts.Model).
		Float64("confidence", opts.Confidence).
		Bool("telegram", opts.Telegram).
		Bool("whatsapp", opts.WhatsApp).
		Bool("gemini", opts.Gemini).
		Msg("Processing started, press Ctrl+C to stop")

	err = loop.Run(ctx)
	log.Info().Int64("frames", frames).Int64("alerts", alerts).Msg("Processing finished")
	return err
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"detectorx-worker-go/internal/config"
	"detectorx-worker-go/internal/logging"
	"detectorx-worker-go/internal/models"
	"detectorx-worker-go/internal/services/alerting"
	"detectorx-worker-go/internal/services/analysis"
	"detectorx-worker-go/internal/services/detection"
	"detectorx-worker-go/internal/services/enhance"
	"detectorx-worker-go/internal/services/imagehost"
	"detectorx-worker-go/internal/services/journal"
	"detectorx-worker-go/internal/services/messaging"
	"detectorx-worker-go/internal/services/monitor"
	"detectorx-worker-go/internal/services/notification"
	"detectorx-worker-go/internal/services/publisher/mjpeg"
	"detectorx-worker-go/internal/ws"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config *config.Config

	DetectionSvc   *detection.Service
	Analyzer       *analysis.GeminiAnalyzer
	ImageHost      imagehost.Host
	Channels       []alerting.Channel
	Bus            messaging.Bus
	Journal        *journal.Store
	Dispatcher     *alerting.Dispatcher
	MonitorManager *monitor.Manager
	Hub            *ws.DetectionHub
	MJPEG          *mjpeg.Publisher

	// UploadPolicy governs deletion of temporary uploaded media
	UploadPolicy alerting.ReleasePolicy
}

// NewServiceContainer creates a new service container
func NewServiceContainer(ctx context.Context, cfg *config.Config) (*ServiceContainer, error) {
	sc := &ServiceContainer{
		Config:       cfg,
		UploadPolicy: alerting.ReleasePolicy{MaxAttempts: cfg.UploadRetries, Backoff: cfg.UploadBackoff},
	}

	sc.DetectionSvc = detection.NewService(cfg.DetectorURL, cfg.DetectorTimeout)

	analyzer, err := analysis.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.AnalysisTimeout)
	if err != nil {
		log.Warn().Err(err).Msg("Gemini client unavailable, hazard analysis disabled")
		analyzer, _ = analysis.NewGeminiAnalyzer(ctx, "", cfg.GeminiModel, cfg.AnalysisTimeout)
	}
	sc.Analyzer = analyzer

	sc.ImageHost = NewImageHost(ctx, cfg)
	sc.Channels = NewChannels(cfg, sc.ImageHost)

	bus, err := messaging.Open(cfg)
	if err != nil {
		// The event bus is optional; alerts still go out without it
		log.Warn().Err(err).Str("event_bus", cfg.EventBus).Msg("Event bus unavailable, continuing without it")
	} else {
		sc.Bus = bus
	}

	opts := alerting.Options{
		Artifacts: alerting.NewArtifactStore("", alerting.ReleasePolicy{MaxAttempts: cfg.ArtifactRetries, Backoff: cfg.ArtifactBackoff}),
		Analyzer:  sc.Analyzer,
		Channels:  sc.Channels,
		Subject:   cfg.AlertsSubject,
		Prompt:    analysis.ServicePrompt,
		Logger:    logging.NewServiceLogger(cfg, "alerting"),
	}
	if sc.Bus != nil {
		opts.Publisher = sc.Bus
	}
	if cfg.JournalPath != "" {
		store, err := journal.New(cfg.JournalPath)
		if err != nil {
			sc.shutdownBus(ctx)
			return nil, fmt.Errorf("failed to open alert journal: %w", err)
		}
		sc.Journal = store
		opts.Journal = store
	}
	sc.Dispatcher = alerting.NewDispatcher(opts)

	sc.Hub = ws.NewDetectionHub(cfg.FrameReportDepth)
	sc.MJPEG = mjpeg.NewPublisher()

	sc.MonitorManager = monitor.NewManager(monitor.Deps{
		Detector:  sc.DetectionSvc,
		Enhancer:  enhance.NewCLAHE(),
		Processor: sc.Dispatcher,
		Logger:    logging.NewServiceLogger(cfg, "monitor"),
	}, cfg.MaxMonitors)
	sc.MonitorManager.AddObserver(sc.Hub)
	sc.MonitorManager.AddObserver(sc.MJPEG)
	sc.MonitorManager.OnFinish(func(status models.MonitorStatus) {
		sc.Hub.CloseMonitor(status.ID)
		sc.MJPEG.Forget(status.ID)
	})

	return sc, nil
}

// NewChannels builds the Telegram and WhatsApp channels from the configuration
func NewChannels(cfg *config.Config, host imagehost.Host) []alerting.Channel {
	return []alerting.Channel{
		notification.NewTelegramChannel(notification.TelegramConfig{
			BotToken:     cfg.TelegramBotToken,
			ChatID:       cfg.TelegramChatID,
			APIURL:       cfg.TelegramAPIURL,
			PhotoTimeout: cfg.TelegramTimeout,
		}, host),
		notification.NewWhatsAppChannel(notification.WhatsAppConfig{
			APIKey:   cfg.CallMeBotAPIKey,
			Phone:    cfg.ReceiverWhatsAppNumber,
			Endpoint: cfg.CallMeBotURL,
			Timeout:  cfg.WhatsAppTimeout,
		}, host),
	}
}

// NewImageHost prefers MinIO when selected and reachable, otherwise Imgur
func NewImageHost(ctx context.Context, cfg *config.Config) imagehost.Host {
	imgur := imagehost.NewImgurHost(cfg.ImgurClientID, cfg.ImgurURL, cfg.ImageHostTimeout)
	if !strings.EqualFold(cfg.ImageHost, config.ImageHostMinio) {
		return imgur
	}

	host, err := imagehost.NewMinioHost(ctx, imagehost.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		URLExpiry: cfg.MinioURLExpiry,
	})
	if err != nil {
		log.Warn().Err(err).Msg("MinIO image host unavailable, falling back to Imgur")
		return imgur
	}
	log.Info().Str("endpoint", cfg.MinioEndpoint).Str("bucket", cfg.MinioBucket).Msg("Using MinIO image host")
	return host
}

// Capabilities reports which optional collaborators are configured
func (sc *ServiceContainer) Capabilities() map[string]interface{} {
	channels := make(map[string]bool, len(sc.Channels))
	for _, ch := range sc.Channels {
		channels[ch.Name()] = ch.Enabled()
	}
	bus := config.EventBusNone
	if sc.Bus != nil {
		bus = sc.Bus.Name()
	}
	return map[string]interface{}{
		"channels":       channels,
		"analysis":       sc.Analyzer != nil && sc.Analyzer.Available(),
		"image_host":     sc.ImageHost.Name(),
		"image_host_ok":  sc.ImageHost.Available(),
		"event_bus":      bus,
		"journal":        sc.Journal != nil,
		"detector":       sc.DetectionSvc.IsHealthy(),
		"max_monitors":   sc.Config.MaxMonitors,
		"default_params": sc.Config.MonitorSettings(""),
	}
}

func (sc *ServiceContainer) shutdownBus(ctx context.Context) {
	if sc.Bus != nil {
		if err := sc.Bus.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down event bus")
		}
	}
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	var errs []error

	if sc.MonitorManager != nil {
		if err := sc.MonitorManager.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if sc.Hub != nil {
		sc.Hub.Shutdown()
	}
	if sc.MJPEG != nil {
		sc.MJPEG.Shutdown()
	}
	sc.shutdownBus(ctx)
	if sc.Journal != nil {
		if err := sc.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if sc.DetectionSvc != nil {
		sc.DetectionSvc.Shutdown(ctx)
	}

	return errors.Join(errs...)
}

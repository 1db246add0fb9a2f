package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"detectorx-worker-go/internal/models"
)

// Event bus backends
const (
	EventBusNone  = "none"
	EventBusNATS  = "nats"
	EventBusKafka = "kafka"
)

// Image host backends
const (
	ImageHostImgur = "imgur"
	ImageHostMinio = "minio"
)

type Config struct {
	// Application
	Version         string        `yaml:"version" env:"VERSION"`
	Environment     string        `yaml:"environment" env:"ENVIRONMENT"`
	WorkerID        string        `yaml:"worker_id" env:"WORKER_ID"`
	Port            int           `yaml:"port" env:"PORT"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool   `yaml:"logdy_enabled" env:"LOGDY_ENABLED"`
	LogdyHost    string `yaml:"logdy_host" env:"LOGDY_HOST"`
	LogdyPort    int    `yaml:"logdy_port" env:"LOGDY_PORT"`

	// Detector service (YOLO inference over HTTP)
	DetectorURL     string        `yaml:"detector_url" env:"DETECTOR_URL"`
	DetectorTimeout time.Duration `yaml:"detector_timeout" env:"DETECTOR_TIMEOUT"`
	ModelPath       string        `yaml:"model_path" env:"MODEL_PATH"`

	// Detection defaults, overridable per monitor
	Confidence      float64 `yaml:"confidence" env:"DETECTION_CONFIDENCE"`
	IOU             float64 `yaml:"iou" env:"DETECTION_IOU"`
	ImageSize       int     `yaml:"image_size" env:"DETECTION_IMGSZ"`
	Augment         bool    `yaml:"augment" env:"DETECTION_AUGMENT"`
	EnhanceContrast bool    `yaml:"enhance_contrast" env:"ENHANCE_CONTRAST"`

	// Alerting
	LocationName     string        `yaml:"location_name" env:"LOCATION_NAME"`
	AlertCooldown    time.Duration `yaml:"alert_cooldown" env:"ALERT_COOLDOWN"`
	AlertsSubject    string        `yaml:"alerts_subject" env:"ALERTS_SUBJECT"`
	TelegramEnabled  bool          `yaml:"telegram_enabled" env:"TELEGRAM_ENABLED"`
	WhatsAppEnabled  bool          `yaml:"whatsapp_enabled" env:"WHATSAPP_ENABLED"`
	AnalysisEnabled  bool          `yaml:"analysis_enabled" env:"ANALYSIS_ENABLED"`
	ArtifactRetries  int           `yaml:"artifact_retries" env:"ARTIFACT_RETRIES"`
	ArtifactBackoff  time.Duration `yaml:"artifact_backoff" env:"ARTIFACT_BACKOFF"`
	UploadRetries    int           `yaml:"upload_retries" env:"UPLOAD_RETRIES"`
	UploadBackoff    time.Duration `yaml:"upload_backoff" env:"UPLOAD_BACKOFF"`
	MaxUploadSizeMB  int64         `yaml:"max_upload_size_mb" env:"MAX_UPLOAD_SIZE_MB"`
	MaxMonitors      int           `yaml:"max_monitors" env:"MAX_MONITORS"`
	FrameReportDepth int           `yaml:"frame_report_depth" env:"FRAME_REPORT_DEPTH"`

	// Telegram
	TelegramBotToken string        `yaml:"telegram_bot_token" env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string        `yaml:"telegram_chat_id" env:"TELEGRAM_CHAT_ID"`
	TelegramAPIURL   string        `yaml:"telegram_api_url" env:"TELEGRAM_API_URL"`
	TelegramTimeout  time.Duration `yaml:"telegram_timeout" env:"TELEGRAM_TIMEOUT"`

	// WhatsApp via CallMeBot
	CallMeBotAPIKey        string        `yaml:"callmebot_api_key" env:"CALLMEBOT_API_KEY"`
	ReceiverWhatsAppNumber string        `yaml:"receiver_whatsapp_number" env:"RECEIVER_WHATSAPP_NUMBER"`
	CallMeBotURL           string        `yaml:"callmebot_url" env:"CALLMEBOT_URL"`
	WhatsAppTimeout        time.Duration `yaml:"whatsapp_timeout" env:"WHATSAPP_TIMEOUT"`

	// Image hosting
	ImageHost        string        `yaml:"image_host" env:"IMAGE_HOST"`
	ImgurClientID    string        `yaml:"imgur_client_id" env:"IMGUR_CLIENT_ID"`
	ImgurURL         string        `yaml:"imgur_url" env:"IMGUR_URL"`
	ImageHostTimeout time.Duration `yaml:"image_host_timeout" env:"IMAGE_HOST_TIMEOUT"`
	MinioEndpoint    string        `yaml:"minio_endpoint" env:"MINIO_ENDPOINT"`
	MinioAccessKey   string        `yaml:"minio_access_key" env:"MINIO_ACCESS_KEY"`
	MinioSecretKey   string        `yaml:"minio_secret_key" env:"MINIO_SECRET_KEY"`
	MinioBucket      string        `yaml:"minio_bucket" env:"MINIO_BUCKET"`
	MinioUseSSL      bool          `yaml:"minio_use_ssl" env:"MINIO_USE_SSL"`
	MinioURLExpiry   time.Duration `yaml:"minio_url_expiry" env:"MINIO_URL_EXPIRY"`

	// Vision-language analysis
	GeminiAPIKey    string        `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	GeminiModel     string        `yaml:"gemini_model" env:"GEMINI_MODEL"`
	AnalysisTimeout time.Duration `yaml:"analysis_timeout" env:"ANALYSIS_TIMEOUT"`

	// Event bus
	EventBus           string        `yaml:"event_bus" env:"EVENT_BUS"`
	NatsURL            string        `yaml:"nats_url" env:"NATS_URL"`
	NatsConnectTimeout time.Duration `yaml:"nats_connect_timeout" env:"NATS_CONNECT_TIMEOUT"`
	NatsReconnectWait  time.Duration `yaml:"nats_reconnect_wait" env:"NATS_RECONNECT_WAIT"`
	NatsMaxReconnects  int           `yaml:"nats_max_reconnects" env:"NATS_MAX_RECONNECTS"`
	KafkaBrokers       []string      `yaml:"kafka_brokers" env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic         string        `yaml:"kafka_topic" env:"KAFKA_TOPIC"`

	// Alert journal (sqlite); empty disables it
	JournalPath string `yaml:"journal_path" env:"JOURNAL_PATH"`
}

// Default returns the built-in configuration before any file or environment overrides
func Default() *Config {
	return &Config{
		Version:         "1.0.0",
		Environment:     "development",
		WorkerID:        "detectorx-1",
		Port:            8000,
		LogLevel:        "info",
		ShutdownTimeout: 30 * time.Second,

		LogdyEnabled: false,
		LogdyHost:    "localhost",
		LogdyPort:    8080,

		DetectorURL:     "http://localhost:8001",
		DetectorTimeout: 15 * time.Second,
		ModelPath:       "best.pt",

		Confidence: 0.15,
		IOU:        0.45,
		ImageSize:  640,

		LocationName:     "Area Produksi",
		AlertCooldown:    10 * time.Second,
		AlertsSubject:    "detectorx.alerts",
		TelegramEnabled:  true,
		WhatsAppEnabled:  true,
		AnalysisEnabled:  true,
		ArtifactRetries:  3,
		ArtifactBackoff:  100 * time.Millisecond,
		UploadRetries:    5,
		UploadBackoff:    200 * time.Millisecond,
		MaxUploadSizeMB:  512,
		MaxMonitors:      4,
		FrameReportDepth: 32,

		TelegramAPIURL:  "https://api.telegram.org",
		TelegramTimeout: 30 * time.Second,

		CallMeBotURL:    "https://api.callmebot.com/whatsapp.php",
		WhatsAppTimeout: 20 * time.Second,

		ImageHost:        ImageHostImgur,
		ImgurURL:         "https://api.imgur.com/3/image",
		ImageHostTimeout: 30 * time.Second,
		MinioBucket:      "detectorx-alerts",
		MinioURLExpiry:   7 * 24 * time.Hour,

		GeminiModel:     "gemini-1.5-flash-latest",
		AnalysisTimeout: 60 * time.Second,

		EventBus:           EventBusNone,
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: 10 * time.Second,
		NatsReconnectWait:  2 * time.Second,
		NatsMaxReconnects:  -1, // -1 = unlimited
		KafkaTopic:         "detectorx-alerts",
	}
}

// Load reads .env, then the optional YAML file named by CONFIG_FILE, then the environment.
// Environment variables win over the file, the file wins over defaults.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("Loaded configuration file")
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks ranges that would otherwise fail deep inside the pipeline
func (c *Config) Validate() error {
	var errs []error
	if c.Confidence < 0 || c.Confidence > 1 {
		errs = append(errs, fmt.Errorf("confidence must be within [0,1], got %v", c.Confidence))
	}
	if c.IOU < 0 || c.IOU > 1 {
		errs = append(errs, fmt.Errorf("iou must be within [0,1], got %v", c.IOU))
	}
	if err := ValidateImageSize(c.ImageSize); err != nil {
		errs = append(errs, err)
	}
	if c.AlertCooldown < 0 {
		errs = append(errs, fmt.Errorf("alert cooldown must not be negative, got %s", c.AlertCooldown))
	}
	if c.ArtifactRetries < 1 || c.UploadRetries < 1 {
		errs = append(errs, errors.New("artifact and upload retries must be at least 1"))
	}
	switch strings.ToLower(c.EventBus) {
	case EventBusNone, EventBusNATS, EventBusKafka:
	default:
		errs = append(errs, fmt.Errorf("unknown event bus %q", c.EventBus))
	}
	switch strings.ToLower(c.ImageHost) {
	case ImageHostImgur, ImageHostMinio:
	default:
		errs = append(errs, fmt.Errorf("unknown image host %q", c.ImageHost))
	}
	if c.MaxMonitors < 1 {
		errs = append(errs, errors.New("max monitors must be at least 1"))
	}
	return errors.Join(errs...)
}

// ValidateImageSize checks the inference size is a positive multiple of 32
func ValidateImageSize(size int) error {
	if size <= 0 || size%32 != 0 {
		return fmt.Errorf("image size must be a positive multiple of 32, got %d", size)
	}
	return nil
}

// MonitorSettings builds the default per-run settings from the configuration
func (c *Config) MonitorSettings(source string) models.MonitorSettings {
	return models.MonitorSettings{
		Detection: models.DetectionParams{
			Model:      c.ModelPath,
			Confidence: c.Confidence,
			IOU:        c.IOU,
			ImageSize:  c.ImageSize,
			Augment:    c.Augment,
		},
		EnhanceContrast:   c.EnhanceContrast,
		Cooldown:          c.AlertCooldown,
		LocationName:      c.LocationName,
		SourceDescription: source,
		TelegramEnabled:   c.TelegramEnabled,
		WhatsAppEnabled:   c.WhatsAppEnabled,
		AnalysisEnabled:   c.AnalysisEnabled,
	}
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the default NATS URL based on environment
func getNatsURL() string {
	if isRunningInDocker() {
		return "nats://nats:4222"
	}
	return "nats://localhost:4222"
}

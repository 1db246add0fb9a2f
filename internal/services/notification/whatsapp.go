package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"detectorx-worker-go/internal/models"
	"detectorx-worker-go/internal/services/imagehost"
)

// WhatsAppConfig holds the CallMeBot gateway settings
type WhatsAppConfig struct {
	APIKey   string
	Phone    string
	Endpoint string
	Timeout  time.Duration
}

// WhatsAppChannel sends text alerts through the CallMeBot WhatsApp gateway.
// The gateway cannot carry attachments, so the frame travels as a hosted link.
type WhatsAppChannel struct {
	cfg    WhatsAppConfig
	host   imagehost.Host
	client *http.Client
}

func NewWhatsAppChannel(cfg WhatsAppConfig, host imagehost.Host) *WhatsAppChannel {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	cfg.Phone = strings.TrimLeft(strings.TrimSpace(cfg.Phone), "+")
	if cfg.APIKey == "" || cfg.Phone == "" {
		log.Warn().Msg("CALLMEBOT_API_KEY or RECEIVER_WHATSAPP_NUMBER missing, WhatsApp alerts disabled")
	}
	return &WhatsAppChannel{
		cfg:    cfg,
		host:   host,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (w *WhatsAppChannel) Name() string { return models.ChannelWhatsApp }

func (w *WhatsAppChannel) Enabled() bool {
	return w.cfg.APIKey != "" && w.cfg.Phone != ""
}

func (w *WhatsAppChannel) Send(ctx context.Context, msg models.AlertMessage, imagePath string) error {
	if !w.Enabled() {
		return ErrNotConfigured
	}

	hasImage := fileExists(imagePath)
	link := ""
	if hasImage {
		link = hostImage(ctx, w.host, imagePath, w.Name())
	}

	text := Compose(msg, link)
	switch {
	case hasImage && link == "":
		text += "\n\n" + noteHostingFailed
	case imagePath != "" && !hasImage:
		log.Warn().Str("path", imagePath).Msg("WhatsApp: annotated image not found")
		text += "\n\n" + noteImageMissing
	}

	q := url.Values{}
	q.Set("phone", w.cfg.Phone)
	q.Set("text", text)
	q.Set("apikey", w.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("callmebot request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callmebot status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	log.Debug().Int("status", resp.StatusCode).Msg("WhatsApp alert sent via CallMeBot")
	return nil
}

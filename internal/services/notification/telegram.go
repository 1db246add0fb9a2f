package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"detectorx-worker-go/internal/models"
	"detectorx-worker-go/internal/services/imagehost"
)

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken     string
	ChatID       string
	APIURL       string
	PhotoTimeout time.Duration
	TextTimeout  time.Duration
}

// TelegramChannel delivers alerts through the Telegram Bot API
type TelegramChannel struct {
	cfg         TelegramConfig
	host        imagehost.Host
	photoClient *http.Client
	textClient  *http.Client
}

// TelegramResponse represents the response from Telegram API
type TelegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func NewTelegramChannel(cfg TelegramConfig, host imagehost.Host) *TelegramChannel {
	if cfg.PhotoTimeout == 0 {
		cfg.PhotoTimeout = 30 * time.Second
	}
	if cfg.TextTimeout == 0 {
		cfg.TextTimeout = 10 * time.Second
	}
	if cfg.BotToken == "" || cfg.ChatID == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID missing, Telegram alerts disabled")
	}
	return &TelegramChannel{
		cfg:         cfg,
		host:        host,
		photoClient: &http.Client{Timeout: cfg.PhotoTimeout},
		textClient:  &http.Client{Timeout: cfg.TextTimeout},
	}
}

func (t *TelegramChannel) Name() string { return models.ChannelTelegram }

func (t *TelegramChannel) Enabled() bool {
	return t.cfg.BotToken != "" && t.cfg.ChatID != ""
}

// Send posts the annotated frame with the alert as caption, falling back to a plain
// text message when the photo cannot be delivered.
func (t *TelegramChannel) Send(ctx context.Context, msg models.AlertMessage, imagePath string) error {
	if !t.Enabled() {
		return ErrNotConfigured
	}

	hasImage := fileExists(imagePath)
	link := ""
	if hasImage {
		link = hostImage(ctx, t.host, imagePath, t.Name())
	}
	caption := Compose(msg, link)

	if !hasImage {
		text := caption
		if imagePath != "" {
			log.Warn().Str("path", imagePath).Msg("Telegram: annotated image not found")
			text += "\n\n" + noteImageNotAttached
		}
		return t.sendMessage(ctx, text)
	}

	err := t.sendPhoto(ctx, imagePath, caption)
	if err == nil {
		return nil
	}
	log.Warn().Err(err).Msg("Telegram photo send failed, falling back to text")

	if ferr := t.sendMessage(ctx, caption+"\n\n"+notePhotoSendFailed); ferr != nil {
		return fmt.Errorf("telegram photo: %v; text fallback: %w", err, ferr)
	}
	return nil
}

func (t *TelegramChannel) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.cfg.APIURL, t.cfg.BotToken, method)
}

// sendPhoto sends a photo using multipart form data
func (t *TelegramChannel) sendPhoto(ctx context.Context, imagePath, caption string) error {
	photo, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", t.cfg.ChatID); err != nil {
		return fmt.Errorf("failed to write chat_id field: %w", err)
	}
	if err := writer.WriteField("caption", caption); err != nil {
		return fmt.Errorf("failed to write caption field: %w", err)
	}
	part, err := writer.CreateFormFile("photo", filepath.Base(imagePath))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.photoClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	defer resp.Body.Close()

	return handleTelegramResponse(resp)
}

func (t *TelegramChannel) sendMessage(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"chat_id": t.cfg.ChatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.textClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	return handleTelegramResponse(resp)
}

func handleTelegramResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var tr TelegramResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("telegram status %d: failed to unmarshal response: %w", resp.StatusCode, err)
	}
	if !tr.OK {
		return fmt.Errorf("telegram API error %d: %s", tr.ErrorCode, tr.Description)
	}
	return nil
}

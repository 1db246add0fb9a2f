package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// ImgurHost uploads images anonymously with an Imgur client id
type ImgurHost struct {
	clientID   string
	endpoint   string
	httpClient *http.Client
}

type imgurResponse struct {
	Data struct {
		Link  string `json:"link"`
		Error string `json:"error"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

func NewImgurHost(clientID, endpoint string, timeout time.Duration) *ImgurHost {
	if clientID == "" {
		log.Warn().Msg("IMGUR_CLIENT_ID not set, image links will not be attached to alerts")
	}
	return &ImgurHost{
		clientID:   clientID,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (h *ImgurHost) Name() string { return "imgur" }

func (h *ImgurHost) Available() bool { return h.clientID != "" }

// Upload posts the file as multipart form data and returns the public link
func (h *ImgurHost) Upload(ctx context.Context, imagePath string) (string, error) {
	if !h.Available() {
		return "", ErrNotConfigured
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.WriteField("type", "file"); err != nil {
		return "", fmt.Errorf("failed to write type field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Client-ID "+h.clientID)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("imgur upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed imgurResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("imgur status %d: unreadable response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !parsed.Success {
		return "", fmt.Errorf("imgur status %d: %s", resp.StatusCode, parsed.Data.Error)
	}
	if parsed.Data.Link == "" {
		return "", errors.New("imgur response has no link")
	}

	log.Debug().Str("link", parsed.Data.Link).Msg("Image uploaded to Imgur")
	return parsed.Data.Link, nil
}

package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gocv.io/x/gocv"

	"detectorx-worker-go/internal/helpers"
	"detectorx-worker-go/internal/models"
)

// Service talks to the YOLO inference service over HTTP
type Service struct {
	endpoint  string
	client    *http.Client
	mu        sync.RWMutex
	isHealthy bool
}

// Result holds the detections for one frame and the frame with boxes drawn.
// Annotated is owned by the caller and must be closed.
type Result struct {
	Detections    []models.Detection
	Annotated     gocv.Mat
	InferenceTime time.Duration
	Unsupported   bool
}

// Close releases the annotated frame
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	return r.Annotated.Close()
}

// Labels returns the detected labels in order of first appearance
func (r *Result) Labels() []string {
	return lo.Uniq(lo.Map(r.Detections, func(d models.Detection, _ int) string { return d.Label }))
}

type wireDetection struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

type wireResponse struct {
	Detections      []wireDetection `json:"detections"`
	InferenceTimeMs float64         `json:"inference_time_ms"`
	Error           string          `json:"error,omitempty"`
}

func NewService(endpoint string, timeout time.Duration) *Service {
	log.Info().Str("url", endpoint).Msg("Initializing detection service")

	s := &Service{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}

	// Try to connect, but don't fail if it's not available
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.HealthCheck(ctx); err != nil {
		log.Warn().Err(err).Msg("Detection service not available, will retry on first frame")
	}
	return s
}

// HealthCheck probes GET /health and caches the outcome
func (s *Service) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.setHealthy(false)
		return fmt.Errorf("detection service health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.setHealthy(false)
		return fmt.Errorf("detection service health check returned status %d", resp.StatusCode)
	}
	s.setHealthy(true)
	return nil
}

func (s *Service) setHealthy(v bool) {
	s.mu.Lock()
	s.isHealthy = v
	s.mu.Unlock()
}

func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isHealthy
}

// Detect runs inference on one frame. Frames that are not 1, 3 or 4 channel come back
// unannotated with no detections. Labels are lower-cased.
func (s *Service) Detect(ctx context.Context, frame gocv.Mat, params models.DetectionParams) (*Result, error) {
	normalized, ok := helpers.NormalizeChannels(frame)
	if !ok {
		normalized.Close()
		log.Warn().
			Int("channels", frame.Channels()).
			Bool("empty", frame.Empty()).
			Msg("Unsupported frame layout, skipping detection")
		return &Result{Annotated: frame.Clone(), Unsupported: true}, nil
	}

	jpeg, err := helpers.EncodeJPEG(normalized, helpers.HighQuality)
	if err != nil {
		normalized.Close()
		return nil, err
	}

	resp, err := s.post(ctx, jpeg, params)
	if err != nil {
		normalized.Close()
		return nil, err
	}

	detections := make([]models.Detection, 0, len(resp.Detections))
	for _, wd := range resp.Detections {
		detections = append(detections, toDetection(wd, normalized.Cols(), normalized.Rows()))
	}
	helpers.DrawDetections(&normalized, detections)

	return &Result{
		Detections:    detections,
		Annotated:     normalized,
		InferenceTime: time.Duration(resp.InferenceTimeMs * float64(time.Millisecond)),
	}, nil
}

func (s *Service) post(ctx context.Context, jpeg []byte, params models.DetectionParams) (*wireResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(jpeg); err != nil {
		return nil, fmt.Errorf("failed to write frame: %w", err)
	}
	fields := map[string]string{
		"model":          params.Model,
		"conf_threshold": strconv.FormatFloat(params.Confidence, 'f', 2, 64),
		"iou_threshold":  strconv.FormatFloat(params.IOU, 'f', 2, 64),
		"imgsz":          strconv.Itoa(params.ImageSize),
		"augment":        strconv.FormatBool(params.Augment),
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/detect", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		s.setHealthy(false)
		return nil, fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()
	s.setHealthy(true)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read detection response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detection service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed wireResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode detection response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("detection service error: %s", parsed.Error)
	}
	return &parsed, nil
}

func toDetection(wd wireDetection, width, height int) models.Detection {
	label := strings.ToLower(strings.TrimSpace(wd.Class))
	if label == "" {
		if name, ok := models.DefaultClassNames[wd.ClassID]; ok {
			label = name
		} else {
			label = fmt.Sprintf("class_%d", wd.ClassID)
		}
	}

	var box models.BoundingBox
	if len(wd.BBox) == 4 {
		box = models.BoundingBox{
			X1: clamp(wd.BBox[0], width),
			Y1: clamp(wd.BBox[1], height),
			X2: clamp(wd.BBox[2], width),
			Y2: clamp(wd.BBox[3], height),
		}
	}

	return models.Detection{
		Label:      label,
		ClassID:    wd.ClassID,
		Confidence: wd.Confidence,
		Box:        box,
	}
}

func clamp(v float64, limit int) int {
	i := int(math.Round(v))
	if i < 0 {
		return 0
	}
	if i > limit {
		return limit
	}
	return i
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.client.CloseIdleConnections()
	log.Info().Msg("Detection service shutdown")
	return nil
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gocv.io/x/gocv"

	"detectorx-worker-go/internal/config"
	"detectorx-worker-go/internal/models"
	"detectorx-worker-go/internal/services"
)

type upstreams struct {
	detector *httptest.Server
	telegram *httptest.Server

	mu       sync.Mutex
	captions []string
}

func newUpstreams(t *testing.T) *upstreams {
	t.Helper()
	u := &upstreams{}

	u.detector = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/detect":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"detections":[
				{"class":"fire","class_id":0,"confidence":0.81,"bbox":[2,2,30,30]},
				{"class":"person","class_id":5,"confidence":0.9,"bbox":[1,1,5,5]}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(u.detector.Close)

	u.telegram = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendPhoto") {
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"unexpected method"}`))
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err == nil {
			u.mu.Lock()
			u.captions = append(u.captions, r.FormValue("caption"))
			u.mu.Unlock()
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(u.telegram.Close)
	return u
}

func (u *upstreams) sent() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.captions...)
}

func newTestServer(t *testing.T) (*Server, *upstreams) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	u := newUpstreams(t)

	cfg := config.Default()
	cfg.DetectorURL = u.detector.URL
	cfg.DetectorTimeout = 5 * time.Second
	cfg.TelegramBotToken = "token"
	cfg.TelegramChatID = "42"
	cfg.TelegramAPIURL = u.telegram.URL
	cfg.LocationName = "Gudang Timur"
	cfg.JournalPath = filepath.Join(t.TempDir(), "alerts.db")

	container, err := services.NewServiceContainer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("container: %v", err)
	}
	srv, err := NewServer(cfg, container)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		container.Shutdown(ctx)
	})
	return srv, u
}

func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func imageUpload(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()
	img := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	defer buf.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, _ := w.CreateFormFile("image", "gudang.png")
	part.Write(buf.GetBytes())
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/detect/image", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHealthAndCapabilities(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Fatalf("health = %d %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}

	rec = do(srv, httptest.NewRequest(http.MethodGet, "/config/capabilities", nil))
	var caps struct {
		Channels map[string]bool `json:"channels"`
		Analysis bool            `json:"analysis"`
		Journal  bool            `json:"journal"`
		EventBus string          `json:"event_bus"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &caps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !caps.Channels["telegram"] || caps.Channels["whatsapp"] || caps.Analysis || !caps.Journal || caps.EventBus != "none" {
		t.Fatalf("capabilities = %+v", caps)
	}
}

func TestDetectImageDispatchesAndJournals(t *testing.T) {
	srv, u := newTestServer(t)

	rec := do(srv, imageUpload(t, map[string]string{"include_image": "true", "confidence": "0.3"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("detect = %d %s", rec.Code, rec.Body)
	}
	var report models.FrameReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Signals) != 2 || report.Signals[0].Kind != models.SignalDispatched || report.Signals[1].Kind != models.SignalInformational {
		t.Fatalf("signals = %+v", report.Signals)
	}
	if len(report.AnnotatedJPEG) == 0 {
		t.Fatal("include_image=true must return the annotated frame")
	}

	captions := u.sent()
	if len(captions) != 1 || !strings.Contains(captions[0], "Gudang Timur") || !strings.Contains(captions[0], "Image: gudang.png") {
		t.Fatalf("captions = %q", captions)
	}

	// second upload within the cooldown window is gated
	rec = do(srv, imageUpload(t, nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Signals[0].Kind != models.SignalCooldown || len(report.AnnotatedJPEG) != 0 {
		t.Fatalf("second report = %+v", report.Signals)
	}
	if len(u.sent()) != 1 {
		t.Fatal("cooldown must suppress the second notification")
	}

	rec = do(srv, httptest.NewRequest(http.MethodGet, "/alerts?limit=10", nil))
	var alerts struct {
		Alerts  []models.AlertEvent `json:"alerts"`
		ByLabel map[string]int      `json:"by_label"`
		Enabled bool                `json:"journal_enabled"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &alerts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !alerts.Enabled || len(alerts.Alerts) != 1 || alerts.Alerts[0].Label != "fire" || alerts.Alerts[0].Status != models.DispatchStatusAttempted {
		t.Fatalf("alerts = %+v", alerts)
	}
	if alerts.ByLabel["fire"] != 1 {
		t.Fatalf("by_label = %v", alerts.ByLabel)
	}
	if len(alerts.Alerts[0].Channels) != 1 || !alerts.Alerts[0].Channels[0].Sent {
		t.Fatalf("channel outcome = %+v", alerts.Alerts[0].Channels)
	}
}

func TestRequestValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"missing image", httptest.NewRequest(http.MethodPost, "/detect/image", nil), http.StatusBadRequest},
		{"confidence out of range", imageUpload(t, map[string]string{"confidence": "1.5"}), http.StatusBadRequest},
		{"bad image size", imageUpload(t, map[string]string{"imgsz": "100"}), http.StatusBadRequest},
		{"cooldown too large", imageUpload(t, map[string]string{"cooldown_seconds": "1e12"}), http.StatusBadRequest},
		{"camera without device", jsonRequest(http.MethodPost, "/monitors/camera", `{}`), http.StatusBadRequest},
		{"unknown monitor", httptest.NewRequest(http.MethodGet, "/monitors/nope", nil), http.StatusNotFound},
		{"stop unknown monitor", httptest.NewRequest(http.MethodPost, "/monitors/nope/stop", nil), http.StatusNotFound},
		{"stream unknown monitor", httptest.NewRequest(http.MethodGet, "/monitors/nope/stream", nil), http.StatusNotFound},
		{"bad alert limit", httptest.NewRequest(http.MethodGet, "/alerts?limit=abc", nil), http.StatusBadRequest},
		{"missing video", httptest.NewRequest(http.MethodPost, "/monitors/video", nil), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(srv, tt.req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestListMonitorsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(srv, httptest.NewRequest(http.MethodGet, "/monitors", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"monitors":[]`) {
		t.Fatalf("list = %d %s", rec.Code, rec.Body)
	}
	rec = do(srv, httptest.NewRequest(http.MethodGet, "/system/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d", rec.Code)
	}
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

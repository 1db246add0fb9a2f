package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeHost struct {
	link string
	err  error
}

func (f *fakeHost) Name() string    { return "fake" }
func (f *fakeHost) Available() bool { return true }
func (f *fakeHost) Upload(context.Context, string) (string, error) {
	return f.link, f.err
}

func writeFrame(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "frame.jpg")
	if err := os.WriteFile(p, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

// telegramStub records calls; failPhoto makes sendPhoto return an API error
type telegramStub struct {
	mu        sync.Mutex
	calls     []string
	texts     []string
	captions  []string
	failPhoto bool
}

func (s *telegramStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/sendPhoto"):
			s.calls = append(s.calls, "photo")
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			s.captions = append(s.captions, r.FormValue("caption"))
			if s.failPhoto {
				w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: caption is too long"}`))
				return
			}
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			s.calls = append(s.calls, "text")
			var payload map[string]string
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &payload)
			s.texts = append(s.texts, payload["text"])
		}
		w.Write([]byte(`{"ok":true}`))
	}
}

func newTelegram(url string) *TelegramChannel {
	return NewTelegramChannel(TelegramConfig{BotToken: "tok", ChatID: "42", APIURL: url}, &fakeHost{link: "https://img/x.jpg"})
}

func TestTelegramSendsPhotoWithCaption(t *testing.T) {
	stub := &telegramStub{}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	if err := newTelegram(srv.URL).Send(context.Background(), sampleMessage(""), writeFrame(t)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(stub.calls) != 1 || stub.calls[0] != "photo" {
		t.Fatalf("calls = %v", stub.calls)
	}
	if !strings.Contains(stub.captions[0], "https://img/x.jpg") {
		t.Fatalf("caption missing link: %q", stub.captions[0])
	}
}

func TestTelegramFallsBackToText(t *testing.T) {
	stub := &telegramStub{failPhoto: true}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	if err := newTelegram(srv.URL).Send(context.Background(), sampleMessage(""), writeFrame(t)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if strings.Join(stub.calls, ",") != "photo,text" {
		t.Fatalf("calls = %v", stub.calls)
	}
	if !strings.Contains(stub.texts[0], notePhotoSendFailed) {
		t.Fatalf("fallback text missing note: %q", stub.texts[0])
	}
}

func TestTelegramMissingImageSendsTextWithNote(t *testing.T) {
	stub := &telegramStub{}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	missing := filepath.Join(t.TempDir(), "gone.jpg")
	if err := newTelegram(srv.URL).Send(context.Background(), sampleMessage(""), missing); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(stub.texts) != 1 || !strings.Contains(stub.texts[0], noteImageNotAttached) {
		t.Fatalf("texts = %v", stub.texts)
	}
}

func TestTelegramNotConfigured(t *testing.T) {
	ch := NewTelegramChannel(TelegramConfig{APIURL: "http://unused"}, nil)
	if ch.Enabled() {
		t.Fatal("channel without token must be disabled")
	}
	if err := ch.Send(context.Background(), sampleMessage(""), ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}

func TestWhatsAppSend(t *testing.T) {
	var got struct{ phone, text, key string }
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got.phone, got.text, got.key = q.Get("phone"), q.Get("text"), q.Get("apikey")
		w.Write([]byte("Message queued"))
	}))
	defer srv.Close()

	ch := NewWhatsAppChannel(WhatsAppConfig{APIKey: "k1", Phone: "+628123", Endpoint: srv.URL, Timeout: time.Second}, &fakeHost{link: "https://img/y.jpg"})
	if err := ch.Send(context.Background(), sampleMessage("Move away."), writeFrame(t)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.phone != "628123" {
		t.Errorf("phone = %q, leading + should be stripped", got.phone)
	}
	if got.key != "k1" {
		t.Errorf("apikey = %q", got.key)
	}
	if !strings.Contains(got.text, "https://img/y.jpg") || !strings.Contains(got.text, "Move away.") {
		t.Errorf("text = %q", got.text)
	}
}

func TestWhatsAppHostingFailureNote(t *testing.T) {
	var text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text = r.URL.Query().Get("text")
	}))
	defer srv.Close()

	ch := NewWhatsAppChannel(WhatsAppConfig{APIKey: "k", Phone: "1", Endpoint: srv.URL}, &fakeHost{err: errors.New("rate limited")})
	if err := ch.Send(context.Background(), sampleMessage(""), writeFrame(t)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.HasSuffix(text, noteHostingFailed) {
		t.Fatalf("text = %q", text)
	}
}

func TestWhatsAppHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid apikey", http.StatusForbidden)
	}))
	defer srv.Close()

	ch := NewWhatsAppChannel(WhatsAppConfig{APIKey: "k", Phone: "1", Endpoint: srv.URL}, nil)
	if err := ch.Send(context.Background(), sampleMessage(""), ""); err == nil {
		t.Fatal("expected error for 403")
	}
}

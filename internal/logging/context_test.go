package logging

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestGinContextFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set("request_id", "req-1")
	c.Set("start_time", time.Now())
	SetMonitorID(c, "mon-7")

	Info(c).Msg("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["request_id"] != "req-1" || entry["monitor_id"] != "mon-7" {
		t.Fatalf("missing context fields: %v", entry)
	}
	if _, ok := entry["duration"]; !ok {
		t.Fatalf("missing duration: %v", entry)
	}
}

func TestNilContext(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	Warn(nil).Msg("no context")
	if !bytes.Contains(buf.Bytes(), []byte("no context")) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

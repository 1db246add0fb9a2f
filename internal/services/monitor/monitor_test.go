package monitor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"detectorx-worker-go/internal/models"
	"detectorx-worker-go/internal/services/alerting"
	"detectorx-worker-go/internal/services/detection"
	"detectorx-worker-go/internal/services/streamcapture"
)

// scriptedDetector returns one scripted outcome per call, then nothing
type scriptedDetector struct {
	mu     sync.Mutex
	script [][]models.Detection
	errs   map[int]error
	calls  int
}

func (d *scriptedDetector) Detect(_ context.Context, frame gocv.Mat, _ models.DetectionParams) (*detection.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if err := d.errs[i]; err != nil {
		return nil, err
	}
	var dets []models.Detection
	if i < len(d.script) {
		dets = d.script[i]
	}
	return &detection.Result{Detections: dets, Annotated: frame.Clone()}, nil
}

type recordingChannel struct {
	mu   sync.Mutex
	sent []models.AlertMessage
}

func (c *recordingChannel) Name() string  { return "recorder" }
func (c *recordingChannel) Enabled() bool { return true }
func (c *recordingChannel) Send(_ context.Context, msg models.AlertMessage, _ string) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type countingProcessor struct {
	inner Processor
	mu    sync.Mutex
	calls int
}

func (p *countingProcessor) Process(ctx context.Context, req alerting.Request) models.Signal {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.inner.Process(ctx, req)
}

func frames(n int) []gocv.Mat {
	out := make([]gocv.Mat, n)
	for i := range out {
		out[i] = gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	}
	return out
}

func testSettings() models.MonitorSettings {
	return models.MonitorSettings{
		Detection:         models.DetectionParams{Confidence: 0.2, IOU: 0.45, ImageSize: 640},
		Cooldown:          10 * time.Second,
		LocationName:      "Gudang",
		SourceDescription: "File: test.mp4",
		TelegramEnabled:   true,
	}
}

func newDispatcher(t *testing.T, ch alerting.Channel, now time.Time) *alerting.Dispatcher {
	t.Helper()
	return alerting.NewDispatcher(alerting.Options{
		Artifacts: alerting.NewArtifactStore(t.TempDir(), alerting.ArtifactReleasePolicy),
		Channels:  []alerting.Channel{ch},
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return now },
	})
}

func TestLoopAppliesAlertPolicy(t *testing.T) {
	fire := models.Detection{Label: "fire", Confidence: 0.81, Box: models.BoundingBox{X1: 1, Y1: 1, X2: 20, Y2: 20}}
	person := models.Detection{Label: "person", Confidence: 0.99}

	det := &scriptedDetector{
		script: [][]models.Detection{
			{fire, person},
			{},
			{person},
			{{Label: "fire", Confidence: 0.95}},
		},
		errs: map[int]error{4: errors.New("detector down")},
	}
	ch := &recordingChannel{}
	proc := &countingProcessor{inner: newDispatcher(t, ch, time.Unix(1000, 0))}

	src := streamcapture.NewMockSource("File: test.mp4", frames(5)...)
	defer src.Close()

	var reports []models.FrameReport
	loop := &Loop{
		ID:        "m1",
		Source:    src,
		Settings:  testSettings(),
		Detector:  det,
		Processor: proc,
		Observers: []Observer{ObserverFunc(func(r models.FrameReport) { reports = append(reports, r) })},
		Logger:    zerolog.Nop(),
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(reports) != 5 {
		t.Fatalf("reports = %d, want 5", len(reports))
	}
	if ch.count() != 1 {
		t.Fatalf("channel sends = %d, want 1", ch.count())
	}

	first := reports[0]
	if len(first.Signals) != 2 || first.Signals[0].Kind != models.SignalDispatched || first.Signals[1].Kind != models.SignalInformational {
		t.Fatalf("frame 0 signals = %+v", first.Signals)
	}
	if len(first.Labels) != 2 || first.Labels[0] != "fire" || first.Labels[1] != "person" {
		t.Fatalf("frame 0 labels = %v", first.Labels)
	}
	if len(reports[1].Signals) != 0 {
		t.Fatalf("empty frame produced signals: %+v", reports[1].Signals)
	}
	if reports[2].Signals[0].Kind != models.SignalInformational {
		t.Fatalf("person must be informational: %+v", reports[2].Signals)
	}
	if reports[3].Signals[0].Kind != models.SignalCooldown {
		t.Fatalf("second fire must be in cooldown: %+v", reports[3].Signals)
	}
	if reports[4].DetectError == "" || len(reports[4].Signals) != 0 {
		t.Fatalf("detector error must yield an empty report: %+v", reports[4])
	}
	// frames 0 (2 detections), 2 and 3; the empty and failed frames never reach the policy
	if proc.calls != 4 {
		t.Fatalf("processor calls = %d, want 4", proc.calls)
	}
}

func TestLoopStopsAtFrameBoundary(t *testing.T) {
	src := streamcapture.NewMockSource("File: long.mp4", frames(3)...)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen int
	loop := &Loop{
		ID:        "m1",
		Source:    src,
		Settings:  testSettings(),
		Detector:  &scriptedDetector{},
		Processor: newDispatcher(t, &recordingChannel{}, time.Now()),
		Observers: []Observer{ObserverFunc(func(models.FrameReport) {
			seen++
			cancel()
		})},
		Logger: zerolog.Nop(),
	}
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen != 1 || src.Position() != 1 {
		t.Fatalf("seen = %d position = %d, want 1 and 1", seen, src.Position())
	}
}

func TestLoopRendersFrames(t *testing.T) {
	src := streamcapture.NewMockSource("File: one.mp4", frames(1)...)
	defer src.Close()

	var report models.FrameReport
	loop := &Loop{
		Source:       src,
		Settings:     testSettings(),
		Detector:     &scriptedDetector{},
		Processor:    newDispatcher(t, &recordingChannel{}, time.Now()),
		Observers:    []Observer{ObserverFunc(func(r models.FrameReport) { report = r })},
		RenderFrames: true,
		Logger:       zerolog.Nop(),
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.AnnotatedJPEG) < 2 || report.AnnotatedJPEG[0] != 0xFF {
		t.Fatal("expected an encoded JPEG")
	}
}

// blockingSource hands out frames until released
type blockingSource struct {
	release chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newBlockingSource() *blockingSource {
	return &blockingSource{release: make(chan struct{}), closed: make(chan struct{})}
}

func (s *blockingSource) Read(frame *gocv.Mat) error {
	select {
	case <-s.release:
		return io.EOF
	case <-time.After(5 * time.Millisecond):
	}
	m := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	defer m.Close()
	m.CopyTo(frame)
	return nil
}

func (s *blockingSource) Kind() models.SourceKind { return models.SourceKindCamera }
func (s *blockingSource) Describe() string        { return "Camera ID: 0" }
func (s *blockingSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func newManager(t *testing.T, limit int) *Manager {
	t.Helper()
	return NewManager(Deps{
		Detector:  &scriptedDetector{},
		Processor: newDispatcher(t, &recordingChannel{}, time.Now()),
		Logger:    zerolog.Nop(),
	}, limit)
}

func TestManagerRunsToCompletion(t *testing.T) {
	m := newManager(t, 2)

	cleaned := make(chan struct{})
	src := streamcapture.NewMockSource("File: clip.mp4", frames(2)...)
	status, err := m.Start(src, testSettings(), func() { close(cleaned) })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if status.State != models.MonitorStateRunning || status.StreamURL == "" {
		t.Fatalf("status = %+v", status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := m.Wait(ctx, status.ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if final.State != models.MonitorStateFinished || final.FramesRead != 2 || final.FinishedAt == nil {
		t.Fatalf("final = %+v", final)
	}
	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup was not run")
	}
	if len(m.List()) != 1 {
		t.Fatalf("list = %d", len(m.List()))
	}
}

func TestManagerStopAndLimit(t *testing.T) {
	m := newManager(t, 1)

	src := newBlockingSource()
	status, err := m.Start(src, testSettings(), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := m.Start(newBlockingSource(), testSettings(), nil); !errors.Is(err, ErrLimit) {
		t.Fatalf("second start = %v, want ErrLimit", err)
	}

	if _, err := m.Stop(status.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := m.Wait(ctx, status.ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if final.State != models.MonitorStateFinished {
		t.Fatalf("state = %s", final.State)
	}
	select {
	case <-src.closed:
	default:
		t.Fatal("source not closed")
	}

	if _, err := m.Stop(status.ID); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("stop finished monitor = %v", err)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v", err)
	}

	// a finished monitor frees its slot
	next, err := m.Start(newBlockingSource(), testSettings(), nil)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if s, _ := m.Get(next.ID); s.State != models.MonitorStateFinished {
		t.Fatalf("after shutdown state = %s", s.State)
	}
}

func TestManagerProcessImage(t *testing.T) {
	m := NewManager(Deps{
		Detector:  &scriptedDetector{script: [][]models.Detection{{{Label: "smoke", Confidence: 0.6}}}},
		Processor: newDispatcher(t, &recordingChannel{}, time.Now()),
		Logger:    zerolog.Nop(),
	}, 1)

	img := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
	report, err := m.ProcessImage(context.Background(), streamcapture.NewImageSource(img, "snap.jpg"), testSettings(), true)
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if len(report.Signals) != 1 || report.Signals[0].Kind != models.SignalDispatched {
		t.Fatalf("signals = %+v", report.Signals)
	}
	if len(report.AnnotatedJPEG) == 0 {
		t.Fatal("expected rendered frame")
	}
}

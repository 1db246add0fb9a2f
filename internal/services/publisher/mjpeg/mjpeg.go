package mjpeg

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"detectorx-worker-go/internal/helpers"
	"detectorx-worker-go/internal/models"
)

const boundary = "frame"

// Publisher keeps the latest annotated JPEG of every monitor and streams it as MJPEG
type Publisher struct {
	jpegMutex  sync.RWMutex
	latestJPEG map[string][]byte

	notifyMutex sync.RWMutex
	frameNotify map[string]map[chan struct{}]struct{}
	// monitors whose stream has ended; later viewers get a closed channel
	ended map[string]struct{}

	keepalive time.Duration
}

func NewPublisher() *Publisher {
	return &Publisher{
		latestJPEG:  make(map[string][]byte),
		frameNotify: make(map[string]map[chan struct{}]struct{}),
		ended:       make(map[string]struct{}),
		keepalive:   2 * time.Second,
	}
}

// ObserveFrame stores the report's frame and wakes the monitor's viewers
func (p *Publisher) ObserveFrame(report models.FrameReport) {
	if len(report.AnnotatedJPEG) == 0 {
		return
	}

	p.jpegMutex.Lock()
	p.latestJPEG[report.MonitorID] = report.AnnotatedJPEG
	p.jpegMutex.Unlock()

	p.notifyStreamers(report.MonitorID)
}

// Latest returns the most recent frame of a monitor
func (p *Publisher) Latest(monitorID string) ([]byte, bool) {
	p.jpegMutex.RLock()
	defer p.jpegMutex.RUnlock()
	b, ok := p.latestJPEG[monitorID]
	return b, ok && len(b) > 0
}

// Forget drops the stored frame of a finished monitor and ends its open streams
func (p *Publisher) Forget(monitorID string) {
	p.jpegMutex.Lock()
	delete(p.latestJPEG, monitorID)
	p.jpegMutex.Unlock()

	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	p.ended[monitorID] = struct{}{}
	p.closeStreamersLocked(monitorID)
}

func (p *Publisher) closeStreamersLocked(monitorID string) {
	for notify := range p.frameNotify[monitorID] {
		close(notify)
	}
	delete(p.frameNotify, monitorID)
}

func (p *Publisher) notifyStreamers(monitorID string) {
	p.notifyMutex.RLock()
	defer p.notifyMutex.RUnlock()

	for notify := range p.frameNotify[monitorID] {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
}

func (p *Publisher) subscribe(monitorID string) chan struct{} {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()

	notify := make(chan struct{}, 1)
	if _, ok := p.ended[monitorID]; ok {
		close(notify)
		return notify
	}
	if p.frameNotify[monitorID] == nil {
		p.frameNotify[monitorID] = make(map[chan struct{}]struct{})
	}
	p.frameNotify[monitorID][notify] = struct{}{}
	return notify
}

func (p *Publisher) unsubscribe(monitorID string, notify chan struct{}) {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()

	if subs, ok := p.frameNotify[monitorID]; ok {
		delete(subs, notify)
		if len(subs) == 0 {
			delete(p.frameNotify, monitorID)
		}
	}
}

// ViewerCount returns the number of open streams for a monitor
func (p *Publisher) ViewerCount(monitorID string) int {
	p.notifyMutex.RLock()
	defer p.notifyMutex.RUnlock()
	return len(p.frameNotify[monitorID])
}

func (p *Publisher) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, monitorID string) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	notify := p.subscribe(monitorID)
	defer p.unsubscribe(monitorID, notify)

	writePart := func(jpeg []byte) bool {
		if _, err := io.WriteString(w, "--"+boundary+"\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "Content-Type: image/jpeg\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(jpeg))); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	first, ok := p.Latest(monitorID)
	if !ok {
		first = placeholder(monitorID)
	}
	if len(first) > 0 && !writePart(first) {
		return
	}

	keepaliveTicker := time.NewTicker(p.keepalive)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, open := <-notify:
			if !open {
				return
			}
		case <-keepaliveTicker.C:
		}
		if buf, ok := p.Latest(monitorID); ok {
			if !writePart(buf) {
				return
			}
		}
	}
}

func placeholder(monitorID string) []byte {
	m := helpers.DrawPlaceholder(640, 360, "Monitor: "+monitorID, "Waiting for first frame...")
	defer m.Close()
	b, err := helpers.EncodeJPEG(m, helpers.MediumQuality)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode placeholder frame")
		return nil
	}
	return b
}

// Shutdown ends every open stream
func (p *Publisher) Shutdown() {
	p.notifyMutex.Lock()
	for monitorID := range p.frameNotify {
		p.closeStreamersLocked(monitorID)
	}
	p.notifyMutex.Unlock()
	log.Info().Msg("MJPEG publisher shutting down")
}

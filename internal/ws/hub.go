package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"detectorx-worker-go/internal/models"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 30 * time.Second
	defaultSendBuffer = 16
)

type client struct {
	conn       *websocket.Conn
	monitorID  string
	withFrames bool
	send       chan []byte
	closeOnce  sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// DetectionHub fans frame reports out to websocket subscribers, per monitor
type DetectionHub struct {
	// clients maps monitor_id -> set of clients
	clients map[string]map[*client]struct{}
	mu      sync.RWMutex
	buffer  int
}

// NewDetectionHub creates a hub; buffer is the per-client queue depth
func NewDetectionHub(buffer int) *DetectionHub {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &DetectionHub{
		clients: make(map[string]map[*client]struct{}),
		buffer:  buffer,
	}
}

// Register adds a client for a specific monitor
func (h *DetectionHub) Register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.monitorID] == nil {
		h.clients[c.monitorID] = make(map[*client]struct{})
	}
	h.clients[c.monitorID][c] = struct{}{}
	log.Debug().
		Str("monitor_id", c.monitorID).
		Int("total", len(h.clients[c.monitorID])).
		Msg("WebSocket client registered")
}

// Unregister removes a client and closes its send queue
func (h *DetectionHub) Unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[c.monitorID]; ok {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			c.close()
		}
		if len(conns) == 0 {
			delete(h.clients, c.monitorID)
		}
	}
}

// HasClients returns true if any client is subscribed to the monitor
func (h *DetectionHub) HasClients(monitorID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[monitorID]) > 0
}

// ClientCount returns the total number of connected clients
func (h *DetectionHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// ObserveFrame broadcasts a frame report. It never blocks: slow clients drop messages.
func (h *DetectionHub) ObserveFrame(report models.FrameReport) {
	if !h.HasClients(report.MonitorID) {
		return
	}

	var plain, withFrame []byte
	encode := func(frame bool) []byte {
		data, err := json.Marshal(NewFrameMessage(report, frame))
		if err != nil {
			log.Warn().Err(err).Str("monitor_id", report.MonitorID).Msg("Failed to marshal frame message")
			return nil
		}
		return data
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[report.MonitorID] {
		var data []byte
		if c.withFrames {
			if withFrame == nil {
				withFrame = encode(true)
			}
			data = withFrame
		} else {
			if plain == nil {
				plain = encode(false)
			}
			data = plain
		}
		if data == nil {
			continue
		}
		select {
		case c.send <- data:
		default:
			log.Debug().Str("monitor_id", report.MonitorID).Msg("WebSocket client lagging, frame dropped")
		}
	}
}

// CloseMonitor notifies and disconnects every subscriber of a finished monitor
func (h *DetectionHub) CloseMonitor(monitorID string) {
	data, _ := json.Marshal(ClosedMessage{Type: "closed", MonitorID: monitorID, Timestamp: time.Now()})

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[monitorID] {
		select {
		case c.send <- data:
		default:
		}
		c.close()
	}
	delete(h.clients, monitorID)
}

// Shutdown disconnects every client
func (h *DetectionHub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conns := range h.clients {
		for c := range conns {
			c.close()
		}
		delete(h.clients, id)
	}
}

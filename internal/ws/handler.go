package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"detectorx-worker-go/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 256 * 1024, // base64 encoded JPEG frames
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades monitor subscriptions to websocket connections
type Handler struct {
	hub    *DetectionHub
	exists func(monitorID string) bool
}

// NewHandler creates a handler; exists reports whether a monitor id is known
func NewHandler(hub *DetectionHub, exists func(monitorID string) bool) *Handler {
	return &Handler{hub: hub, exists: exists}
}

// Serve handles GET /ws/monitors/:id. Add ?frames=true to receive base64 JPEG frames.
func (h *Handler) Serve(c *gin.Context) {
	monitorID := c.Param("id")
	logging.SetMonitorID(c, monitorID)

	if h.exists != nil && !h.exists(monitorID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "monitor not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c).Err(err).Msg("WebSocket upgrade failed")
		return
	}

	cl := &client{
		conn:       conn,
		monitorID:  monitorID,
		withFrames: c.Query("frames") == "true",
		send:       make(chan []byte, h.hub.buffer),
	}
	h.hub.Register(cl)
	logging.Info(c).Str("remote", c.Request.RemoteAddr).Msg("WebSocket subscriber connected")

	go h.writePump(cl)
	go h.readPump(cl)
}

// readPump keeps the connection alive and detects disconnection
func (h *Handler) readPump(cl *client) {
	defer h.hub.Unregister(cl)

	cl.conn.SetReadLimit(512)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("monitor_id", cl.monitorID).Msg("WebSocket read error")
			}
			return
		}
	}
}

// writePump is the only writer on the connection
func (h *Handler) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.hub.Unregister(cl)
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Unregister(cl)
				return
			}
		}
	}
}

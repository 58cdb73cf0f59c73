package server

import (
	"log"
	"net/http"
	"time"

	"github.com/ayusman/handsignal/internal/session"
	"github.com/gorilla/websocket"
)

const (
	readingsBuffer = 16
	writeTimeout   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// ReadingsSource publishes session readings.
type ReadingsSource interface {
	Readings() session.Readings
	Subscribe(buffer int) (<-chan session.Readings, func())
}

// ReadingsHandler pushes session readings to WebSocket clients as JSON.
// Each client gets the current snapshot first and then every update.
type ReadingsHandler struct {
	source ReadingsSource
}

// NewReadingsHandler creates a new ReadingsHandler.
func NewReadingsHandler(source ReadingsSource) *ReadingsHandler {
	return &ReadingsHandler{source: source}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *ReadingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.source.Subscribe(readingsBuffer)
	defer cancel()

	// Clients only send close frames; reading detects the disconnect.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	current := h.source.Readings()
	if err := h.write(conn, current); err != nil {
		return
	}
	last := current.Seq

	for {
		select {
		case <-closed:
			return
		case r, ok := <-updates:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeTimeout))
				return
			}
			if r.Seq <= last {
				continue
			}
			last = r.Seq
			if err := h.write(conn, r); err != nil {
				return
			}
		}
	}
}

func (h *ReadingsHandler) write(conn *websocket.Conn, r session.Readings) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(r)
}

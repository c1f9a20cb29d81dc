package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/glowlens/internal/server/api"
	"github.com/ayusman/glowlens/internal/session"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventsHandler pushes session events to websocket clients.
type EventsHandler struct {
	sessions *api.SessionHandler
	log      logrus.FieldLogger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(sessions *api.SessionHandler, log logrus.FieldLogger) *EventsHandler {
	return &EventsHandler{sessions: sessions, log: log}
}

// statusMessage is the first message on every connection.
type statusMessage struct {
	Type   string         `json:"type"`
	Status session.Status `json:"status"`
}

// ServeHTTP upgrades the connection, sends the current status and then
// every session event until either side closes.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.Lookup(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade")
		return
	}
	defer conn.Close()

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	// Detect client close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(statusMessage{Type: "status", Status: sess.Status()}); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}

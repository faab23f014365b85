package ws

import (
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/backdoor-sh/termcore/internal/infrastructure/logging"
	"github.com/backdoor-sh/termcore/internal/infrastructure/monitoring"
	"github.com/backdoor-sh/termcore/internal/shared/id"
	"github.com/backdoor-sh/termcore/internal/terminal"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // same-device clients only; no cross-origin state
	},
}

// Message is one client request over the socket.
type Message struct {
	Type    string `json:"type"` // "execute", "input", "ping"
	Command string `json:"command,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Event is one server push over the socket.
type Event struct {
	Type  string `json:"type"` // "output", "done", "pong", "error"
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler streams session output over WebSocket connections.
type Handler struct {
	service *terminal.Service
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a WebSocket handler.
func NewHandler(service *terminal.Service, logger *logging.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		metrics: metrics,
	}
}

// HandleConnection upgrades the request and serves one session's
// stream until the client disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	sid := id.SessionID(c.Param("id"))
	if _, err := h.service.GetSession(sid); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	// Gorilla allows one concurrent writer; output callbacks and
	// replies share this lock.
	var writeMu sync.Mutex
	send := func(ev Event) {
		data, err := sonic.Marshal(ev)
		if err != nil {
			h.logger.Warn("failed to encode event", zap.Error(err))
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("websocket write failed",
				zap.String("session", sid.String()), zap.Error(err))
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			send(Event{Type: "error", Error: "malformed message"})
			continue
		}

		switch msg.Type {
		case "execute":
			h.service.ExecuteCommand(msg.Command, sid, func(text string) {
				send(Event{Type: "output", Data: text})
			}, func(err error) {
				ev := Event{Type: "done"}
				if err != nil {
					ev.Error = err.Error()
				}
				send(ev)
			})
		case "input":
			if err := h.service.SendInput(msg.Text, sid); err != nil {
				send(Event{Type: "error", Error: err.Error()})
			}
		case "ping":
			send(Event{Type: "pong"})
		default:
			send(Event{Type: "error", Error: "unknown message type"})
		}
	}
}

package http

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/backdoor-sh/termcore/internal/infrastructure/logging"
	"github.com/backdoor-sh/termcore/internal/shared/id"
	"github.com/backdoor-sh/termcore/internal/terminal"
)

// Handler exposes the terminal session API over HTTP.
type Handler struct {
	service *terminal.Service
	logger  *logging.Logger
	started time.Time
}

// NewHandler creates the HTTP handler set.
func NewHandler(service *terminal.Service, logger *logging.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		started: time.Now(),
	}
}

// Register attaches the routes to a router group.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.health)
	r.POST("/sessions", h.createSession)
	r.GET("/sessions", h.listSessions)
	r.GET("/sessions/:id", h.getSession)
	r.DELETE("/sessions/:id", h.terminateSession)
	r.POST("/sessions/:id/execute", h.execute)
	r.POST("/sessions/:id/input", h.input)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"sessions":       len(h.service.ListSessions()),
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

func (h *Handler) createSession(c *gin.Context) {
	info := h.service.CreateSession()
	c.JSON(http.StatusCreated, info)
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions := h.service.ListSessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (h *Handler) getSession(c *gin.Context) {
	info, err := h.service.GetSession(id.SessionID(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) terminateSession(c *gin.Context) {
	// Idempotent: terminating an unknown session is still a 204.
	h.service.TerminateSession(id.SessionID(c.Param("id")))
	c.Status(http.StatusNoContent)
}

type executeRequest struct {
	Command string `json:"command" binding:"required"`
}

type executeResponse struct {
	Output  string `json:"output"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// execute runs one command synchronously and returns the collected
// output. Clients that need live streaming use the WebSocket endpoint
// instead.
func (h *Handler) execute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	var (
		mu  sync.Mutex
		buf strings.Builder
	)
	done := make(chan error, 1)

	h.service.ExecuteCommand(req.Command, id.SessionID(c.Param("id")), func(text string) {
		mu.Lock()
		buf.WriteString(text)
		mu.Unlock()
	}, func(err error) {
		done <- err
	})

	err := <-done
	if errors.Is(err, terminal.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	mu.Lock()
	resp := executeResponse{Output: buf.String(), Success: err == nil}
	mu.Unlock()
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

type inputRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) input(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	err := h.service.SendInput(req.Text, id.SessionID(c.Param("id")))
	switch {
	case errors.Is(err, terminal.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, terminal.ErrNoActiveProcess):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
	"sla-monitor/internal/monitor"
	"sla-monitor/internal/polling"
)

// Monitor is the view model the handlers serve.
type Monitor interface {
	View() monitor.View
	Subscribe(fn func(monitor.View)) func()
	RefreshData(ctx context.Context) error
	AcknowledgeAlert(ctx context.Context, id string) error
	Connect(ctx context.Context)
	Disconnect()
}

// Sessions lists and revokes the user's sessions on the remote API.
type Sessions interface {
	ListSessions(ctx context.Context, grouped bool) (models.SessionListing, error)
	RevokeSession(ctx context.Context, id string) error
}

// viewMessage is what WebSocket consumers receive.
type viewMessage struct {
	Type string       `json:"type"`
	Data monitor.View `json:"data"`
}

type Handler struct {
	monitor  Monitor
	sessions Sessions
	hub      *Hub
	logger   *logging.Logger
	upgrader websocket.Upgrader
	unsub    func()
}

// NewHandler wires the hub to the monitor so every View change is pushed to
// connected consumers.
func NewHandler(m Monitor, sessions Sessions, hub *Hub, logger *logging.Logger) *Handler {
	h := &Handler{
		monitor:  m,
		sessions: sessions,
		hub:      hub,
		logger:   logger.Component("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	h.unsub = m.Subscribe(h.broadcast)
	return h
}

// Close detaches from the monitor and drops all consumers.
func (h *Handler) Close() {
	h.unsub()
	h.hub.Close()
}

func (h *Handler) broadcast(v monitor.View) {
	if h.hub.Len() == 0 {
		return
	}
	msg, err := json.Marshal(viewMessage{Type: "view", Data: v})
	if err != nil {
		h.logger.Errorf("Failed to encode view: %v", err)
		return
	}
	h.hub.Broadcast(msg)
}

func (h *Handler) GetView(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.View())
}

func (h *Handler) GetHealth(c *gin.Context) {
	v := h.monitor.View()
	if v.SystemHealth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No SLA data available yet", "is_loading": v.IsLoading})
		return
	}
	c.JSON(http.StatusOK, v.SystemHealth)
}

func (h *Handler) GetAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.View().Alerts)
}

func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	id := c.Param("id")
	err := h.monitor.AcknowledgeAlert(c.Request.Context(), id)
	if errors.Is(err, monitor.ErrAlertNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to acknowledge alert %s: %v", id, err)
		c.JSON(statusFor(err), gin.H{"error": "Failed to acknowledge alert", "view": h.monitor.View()})
		return
	}

	for _, a := range h.monitor.View().Alerts {
		if a.ID == id {
			c.JSON(http.StatusOK, a)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Refresh(c *gin.Context) {
	if err := h.monitor.RefreshData(c.Request.Context()); err != nil {
		h.logger.Errorf("Refresh failed: %v", err)
		c.JSON(statusFor(err), gin.H{"error": "Refresh failed", "view": h.monitor.View()})
		return
	}
	c.JSON(http.StatusAccepted, h.monitor.View())
}

func (h *Handler) Connect(c *gin.Context) {
	h.monitor.Connect(c.Request.Context())
	c.JSON(http.StatusAccepted, h.monitor.View())
}

func (h *Handler) Disconnect(c *gin.Context) {
	h.monitor.Disconnect()
	c.JSON(http.StatusOK, h.monitor.View())
}

func (h *Handler) ListSessions(c *gin.Context) {
	grouped := false
	if raw := c.Query("grouped"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid grouped parameter"})
			return
		}
		grouped = b
	}

	listing, err := h.sessions.ListSessions(c.Request.Context(), grouped)
	if err != nil {
		h.logger.Errorf("Failed to list sessions (grouped=%t): %v", grouped, err)
		c.JSON(statusFor(err), gin.H{"error": "Failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) RevokeSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.RevokeSession(c.Request.Context(), id); err != nil {
		h.logger.Errorf("Failed to revoke session %s: %v", id, err)
		c.JSON(statusFor(err), gin.H{"error": "Failed to revoke session"})
		return
	}
	h.logger.Infof("Revoked session %s", id)
	c.Status(http.StatusNoContent)
}

// StreamView upgrades to a WebSocket, sends the current View and then every
// change until the consumer goes away.
func (h *Handler) StreamView(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	id := uuid.NewString()
	if !h.hub.Add(id, conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many consumers"), time.Now().Add(time.Second))
		conn.Close()
		return
	}
	defer func() {
		h.hub.Remove(conn)
		conn.Close()
	}()

	msg, err := json.Marshal(viewMessage{Type: "view", Data: h.monitor.View()})
	if err == nil {
		err = h.hub.Send(conn, msg)
	}
	if err != nil {
		h.logger.Warnf("Initial view to consumer %s failed: %v", id, err)
		return
	}

	// Consumers only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// statusFor maps fallback errors onto gateway style responses.
func statusFor(err error) int {
	switch {
	case polling.IsHTTP(err):
		if code := polling.StatusCode(err); code == http.StatusNotFound || code == http.StatusUnauthorized || code == http.StatusForbidden {
			return code
		}
		return http.StatusBadGateway
	case polling.IsNetwork(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

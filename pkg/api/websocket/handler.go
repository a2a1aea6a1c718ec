package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Watcher delivers the orchestration events of one session.
type Watcher interface {
	Watch(ctx context.Context, sessionID string, fn func(domain.Event)) error
}

// Handler handles WebSocket connections
type Handler struct {
	watcher Watcher
	logger  *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(watcher Watcher, logger *zap.Logger) *Handler {
	return &Handler{
		watcher: watcher,
		logger:  logger,
	}
}

// HandleSessionStream streams the events of a session until the client goes
// away or the session completes or fails.
func (h *Handler) HandleSessionStream(c *gin.Context) {
	sessionID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("session_id", sessionID),
		zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The client never sends anything; reading detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	eventChan := make(chan domain.Event, 16)
	err = h.watcher.Watch(ctx, sessionID, func(event domain.Event) {
		select {
		case eventChan <- event:
		case <-ctx.Done():
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("session_id", sessionID),
				zap.String("event_type", string(event.Type)))
		}
	})
	if err != nil {
		h.logger.Error("failed to subscribe to session events",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventChan:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Error("failed to write message", zap.Error(err))
				return
			}

			if terminal(event.Type) {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(event.Type))
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
				return
			}
		}
	}
}

func terminal(t domain.EventType) bool {
	return t == domain.EventTypeOrchestrationCompleted || t == domain.EventTypeOrchestrationFailed
}

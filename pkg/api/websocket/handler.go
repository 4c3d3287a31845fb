package websocket

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aescanero/taskrun/internal/application/manager"
	"github.com/aescanero/taskrun/pkg/workflow"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler streams run lifecycle events over WebSocket connections.
type Handler struct {
	manager *manager.Manager
	logger  *zap.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(mgr *manager.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		manager: mgr,
		logger:  logger,
	}
}

// HandleRunStream attaches to a run's publisher and forwards its events to
// the client until the connection or the request context closes. Events are
// buffered so a slow client cannot stall the run; overflowing events are
// dropped.
func (h *Handler) HandleRunStream(c *gin.Context) {
	runID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	eventCh := make(chan workflow.Event, 64)
	sub, err := h.manager.Subscribe(runID, func(ev workflow.Event) {
		select {
		case eventCh <- ev:
		default:
			// Client too slow, drop the event.
		}
	})
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "run not found"))
		return
	}
	defer h.manager.Unsubscribe(runID, sub)

	h.logger.Info("WebSocket connection established",
		zap.String("run_id", runID),
		zap.String("client", c.ClientIP()))

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Error("failed to write message", zap.Error(err))
				return
			}
		}
	}
}

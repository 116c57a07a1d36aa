package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/notify"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Events GET /api/v1/events
// 连接建立后先推送一次完整快照，之后推送每条变更与连接状态事件
func (h *Handler) Events(c *gin.Context) {
	if h.hub == nil {
		respondError(c, http.StatusNotFound, "event stream disabled")
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	events, cancel := h.hub.Subscribe(notify.DefaultSubscriberBuffer)
	remote := c.ClientIP()
	h.logger.Info("event stream opened", zap.String("remote_addr", remote), zap.Int("subscribers", h.hub.Subscribers()))

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, events, done)

	cancel()
	_ = conn.Close()
	h.logger.Info("event stream closed", zap.String("remote_addr", remote))
}

// readPump 只处理控制帧与关闭，客户端消息忽略
func (h *Handler) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, events <-chan notify.Event, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	hello := notify.Event{
		ID:        "snapshot",
		Event:     "state.snapshot",
		Timestamp: time.Now().UnixMilli(),
		Data: map[string]any{
			"state":  h.dev.Store().Snapshot(),
			"status": h.dev.Status().Status.String(),
		},
	}
	if err := write(hello); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := write(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

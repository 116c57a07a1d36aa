// Package notify 把状态变更与连接状态分发到 websocket、Redis 与 Webhook
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/nova-gateway/internal/session"
	"github.com/taoyao-code/nova-gateway/internal/state"
)

// 事件类型
const (
	EventStateChanged  = "state.changed"
	EventStatusChanged = "status.changed"
)

// Event 对外推送的事件
type Event struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// ChangeEvent 属性变更事件
func ChangeEvent(c state.Change) Event {
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		ID:        uuid.NewString(),
		Event:     EventStateChanged,
		Timestamp: at.UnixMilli(),
		Data: map[string]any{
			"property": string(c.Property),
			"old":      c.Old,
			"new":      c.New,
			"source":   string(c.Source),
		},
	}
}

// StatusEvent 连接状态事件
func StatusEvent(s session.StatusInfo) Event {
	return Event{
		ID:        uuid.NewString(),
		Event:     EventStatusChanged,
		Timestamp: s.Since.UnixMilli(),
		Data: map[string]any{
			"status":  s.Status.String(),
			"message": s.Message,
		},
	}
}

// Sink 事件去向
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultSubscriberBuffer 每个订阅者的缓冲
const DefaultSubscriberBuffer = 64

// Hub 进程内事件扇出，供 websocket 连接订阅。
// 订阅者缓冲满时丢弃该订阅者的这条事件，不阻塞发布方。
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	dropped atomic.Uint64
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Event)}
}

// Name 实现 Sink
func (h *Hub) Name() string { return "hub" }

// Subscribe 订阅事件，返回只读通道与取消函数
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish 实现 Sink
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers 当前订阅数
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped 因缓冲满丢弃的事件数
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

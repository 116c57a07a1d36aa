package redis

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StateStore 状态变更发布与快照哈希。
// 每次变更 PUBLISH 到频道，同时 HSET 最新值，新订阅者可先读哈希再订阅频道。
type StateStore struct {
	client  *Client
	channel string
	key     string

	mu     sync.Mutex
	status MirrorStatus
	now    func() time.Time
}

// MirrorStatus 镜像写入情况，供健康检查使用
type MirrorStatus struct {
	Channel     string    `json:"channel"`
	SnapshotKey string    `json:"snapshot_key"`
	Published   uint64    `json:"published"`
	Saved       uint64    `json:"saved"`
	LastOK      time.Time `json:"last_ok,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
}

// Failing 最近一次写入是否失败
func (m MirrorStatus) Failing() bool {
	return !m.LastErrorAt.IsZero() && m.LastErrorAt.After(m.LastOK)
}

// NewStateStore 创建状态存储
func NewStateStore(client *Client, channel, snapshotKey string) *StateStore {
	return &StateStore{
		client:  client,
		channel: channel,
		key:     snapshotKey,
		status:  MirrorStatus{Channel: channel, SnapshotKey: snapshotKey},
		now:     time.Now,
	}
}

// Channel 发布频道名
func (s *StateStore) Channel() string { return s.channel }

// SnapshotKey 快照哈希键
func (s *StateStore) SnapshotKey() string { return s.key }

// Client 底层连接池
func (s *StateStore) Client() *Client { return s.client }

// Status 镜像写入情况快照
func (s *StateStore) Status() MirrorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Publish 发布一条已序列化的事件
func (s *StateStore) Publish(ctx context.Context, payload []byte) error {
	err := s.client.Publish(ctx, s.channel, payload).Err()
	if err != nil {
		err = fmt.Errorf("publish %s: %w", s.channel, err)
	}
	s.record(err, func(m *MirrorStatus) { m.Published++ })
	return err
}

// SaveFields 写入快照哈希的若干字段
func (s *StateStore) SaveFields(ctx context.Context, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	err := s.client.HSet(ctx, s.key, fields).Err()
	if err != nil {
		err = fmt.Errorf("hset %s: %w", s.key, err)
	}
	s.record(err, func(m *MirrorStatus) { m.Saved++ })
	return err
}

// Load 读取快照哈希
func (s *StateStore) Load(ctx context.Context) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}
	return m, nil
}

// Clear 删除快照哈希
func (s *StateStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func (s *StateStore) record(err error, onOK func(*MirrorStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now()
	if err != nil {
		s.status.LastError = err.Error()
		s.status.LastErrorAt = at
		return
	}
	onOK(&s.status)
	s.status.LastOK = at
}

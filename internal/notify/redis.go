package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taoyao-code/nova-gateway/internal/session"
	"github.com/taoyao-code/nova-gateway/internal/state"
)

// RedisStore 发布频道与快照哈希（storage/redis.StateStore）
type RedisStore interface {
	Publish(ctx context.Context, payload []byte) error
	SaveFields(ctx context.Context, fields map[string]any) error
}

// RedisPublisher 事件以 JSON 发布到频道，并把最新值写入快照哈希
type RedisPublisher struct {
	store RedisStore
}

// NewRedisPublisher 创建 Redis 发布器
func NewRedisPublisher(store RedisStore) *RedisPublisher {
	return &RedisPublisher{store: store}
}

// Name 实现 Sink
func (p *RedisPublisher) Name() string { return "redis" }

// Publish 实现 Sink
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.store.Publish(ctx, payload); err != nil {
		return err
	}

	fields := map[string]any{"updated_at": ev.Timestamp}
	switch ev.Event {
	case EventStateChanged:
		prop, _ := ev.Data["property"].(string)
		fields[prop] = ev.Data["new"]
	case EventStatusChanged:
		fields["status"] = ev.Data["status"]
		fields["status_message"] = ev.Data["message"]
	}
	return p.store.SaveFields(ctx, fields)
}

// SeedSnapshot 启动时把完整快照写入哈希
func (p *RedisPublisher) SeedSnapshot(ctx context.Context, snap state.Snapshot, status session.StatusInfo) error {
	return p.store.SaveFields(ctx, map[string]any{
		string(state.PropBrightness):     snap.Brightness,
		string(state.PropDisplayMode):    snap.DisplayMode,
		string(state.PropActiveInput):    snap.ActiveInput,
		string(state.PropActivePreset):   snap.ActivePreset,
		string(state.PropWorkingMode):    snap.WorkingMode,
		string(state.PropControllerID):   snap.Info.ControllerID,
		string(state.PropControllerType): snap.Info.ControllerType,
		string(state.PropFirmware):       snap.Info.FirmwareVersion,
		"status":                         status.Status.String(),
		"status_message":                 status.Message,
	})
}

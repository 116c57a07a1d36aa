package state

import (
	"fmt"
	"sync"
	"time"
)

// Property 可观测属性
type Property string

const (
	PropBrightness   Property = "brightness"
	PropDisplayMode  Property = "display_mode"
	PropActiveInput  Property = "active_input"
	PropActivePreset Property = "active_preset"
	PropWorkingMode  Property = "working_mode"

	// 以下为上线时读取的信息字段
	PropControllerID   Property = "ctrl_id"
	PropControllerType Property = "ctrl_type"
	PropReceiverID     Property = "receiver_id"
	PropDVIStatus      Property = "dvi_status"
	PropFirmware       Property = "ctrl_fw"
)

// Source 写入方
type Source string

const (
	SourcePoll   Source = "poll"   // 轮询或上线查询
	SourceIntent Source = "intent" // 下发命令时的乐观更新
	SourceReset  Source = "reset"  // 断线复位
)

const (
	// Unknown 字符串属性未知值
	Unknown = "-1"
	// UnknownBrightness 亮度未知
	UnknownBrightness = -1.0
)

// Info 设备信息
type Info struct {
	ControllerID    string `json:"ctrl_id"`
	ControllerType  string `json:"ctrl_type"`
	ReceiverID      string `json:"receiver_id"`
	DVIStatus       string `json:"dvi_status"`
	FirmwareVersion string `json:"ctrl_fw"`
}

// Snapshot 设备状态快照（值拷贝）
type Snapshot struct {
	Brightness   float64   `json:"brightness"`
	DisplayMode  string    `json:"display_mode"`
	ActiveInput  string    `json:"active_input"`
	ActivePreset string    `json:"active_preset"`
	WorkingMode  string    `json:"working_mode"`
	Info         Info      `json:"info"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BrightnessKnown 亮度是否已知
func (s Snapshot) BrightnessKnown() bool { return s.Brightness >= 0 }

func unknownSnapshot() Snapshot {
	return Snapshot{
		Brightness:   UnknownBrightness,
		DisplayMode:  Unknown,
		ActiveInput:  Unknown,
		ActivePreset: Unknown,
		WorkingMode:  Unknown,
	}
}

// Change 一次属性跳变
type Change struct {
	Property Property  `json:"property"`
	Old      any       `json:"old"`
	New      any       `json:"new"`
	Source   Source    `json:"source"`
	At       time.Time `json:"at"`
}

// Listener 变更回调，在写入方 goroutine 中同步调用，不得阻塞，也不得回写 Store
type Listener func(Change)

// Store 状态快照存储。
// 轮询与乐观更新两方写入，后写者为准；仅在值变化时通知。
// 写入与通知在 writeMu 下完成，监听方收到的变更顺序与快照应用顺序一致。
type Store struct {
	writeMu sync.Mutex

	mu   sync.RWMutex
	snap Snapshot

	subMu  sync.RWMutex
	subs   map[int]Listener
	nextID int

	now func() time.Time
}

// NewStore 创建全部未知的快照
func NewStore() *Store {
	return &Store{
		snap: unknownSnapshot(),
		subs: make(map[int]Listener),
		now:  time.Now,
	}
}

// Snapshot 当前快照
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe 注册变更回调，返回取消函数
func (s *Store) Subscribe(fn Listener) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// SetBrightness 写入亮度百分比，返回是否发生变化
func (s *Store) SetBrightness(v float64, src Source) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	old := s.snap.Brightness
	if old == v {
		s.mu.Unlock()
		return false
	}
	s.snap.Brightness = v
	at := s.touch()
	s.mu.Unlock()

	s.publish(Change{Property: PropBrightness, Old: old, New: v, Source: src, At: at})
	return true
}

// Set 写入字符串属性，返回是否发生变化
func (s *Store) Set(p Property, v string, src Source) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	field := s.field(p)
	if field == nil {
		s.mu.Unlock()
		return false, fmt.Errorf("state: property %q is not a string field", p)
	}
	old := *field
	if old == v {
		s.mu.Unlock()
		return false, nil
	}
	*field = v
	at := s.touch()
	s.mu.Unlock()

	s.publish(Change{Property: p, Old: old, New: v, Source: src, At: at})
	return true, nil
}

// Reset 断线时状态属性复位为未知（设备信息保留），对每个变化的属性发出通知
func (s *Store) Reset() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	prev := s.snap
	s.snap = unknownSnapshot()
	s.snap.Info = prev.Info
	at := s.touch()
	s.mu.Unlock()

	if prev.Brightness != UnknownBrightness {
		s.publish(Change{Property: PropBrightness, Old: prev.Brightness, New: UnknownBrightness, Source: SourceReset, At: at})
	}
	pairs := []struct {
		p   Property
		old string
	}{
		{PropDisplayMode, prev.DisplayMode},
		{PropActiveInput, prev.ActiveInput},
		{PropActivePreset, prev.ActivePreset},
		{PropWorkingMode, prev.WorkingMode},
	}
	for _, pr := range pairs {
		if pr.old != Unknown {
			s.publish(Change{Property: pr.p, Old: pr.old, New: Unknown, Source: SourceReset, At: at})
		}
	}
}

// field 需持锁调用
func (s *Store) field(p Property) *string {
	switch p {
	case PropDisplayMode:
		return &s.snap.DisplayMode
	case PropActiveInput:
		return &s.snap.ActiveInput
	case PropActivePreset:
		return &s.snap.ActivePreset
	case PropWorkingMode:
		return &s.snap.WorkingMode
	case PropControllerID:
		return &s.snap.Info.ControllerID
	case PropControllerType:
		return &s.snap.Info.ControllerType
	case PropReceiverID:
		return &s.snap.Info.ReceiverID
	case PropDVIStatus:
		return &s.snap.Info.DVIStatus
	case PropFirmware:
		return &s.snap.Info.FirmwareVersion
	}
	return nil
}

func (s *Store) touch() time.Time {
	at := s.now()
	s.snap.UpdatedAt = at
	return at
}

func (s *Store) publish(c Change) {
	s.subMu.RLock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range listeners {
		fn(c)
	}
}

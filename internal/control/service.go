package control

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/catalog"
	"github.com/taoyao-code/nova-gateway/internal/logging"
	"github.com/taoyao-code/nova-gateway/internal/outbound"
	"github.com/taoyao-code/nova-gateway/internal/protocol/nova"
	"github.com/taoyao-code/nova-gateway/internal/session"
	"github.com/taoyao-code/nova-gateway/internal/state"
)

var (
	// ErrNoModel 未选择型号
	ErrNoModel = errors.New("no model selected")
	// ErrCapabilityUnsupported 当前型号不支持该操作
	ErrCapabilityUnsupported = errors.New("capability not supported by model")
	// ErrInvalidArgument 参数非法
	ErrInvalidArgument = errors.New("invalid argument")
)

// Sender 命令发送原语
type Sender interface {
	SendCommand(ctx context.Context, f nova.Frame) (outbound.Response, error)
}

// Result 命令执行结果。离线时 Transmitted=false，乐观更新照常生效。
type Result struct {
	Transmitted bool   `json:"transmitted"`
	Frame       string `json:"frame"`
	Data        string `json:"data,omitempty"`
}

// BrightnessMode 亮度设置方式
type BrightnessMode string

const (
	BrightnessSet    BrightnessMode = "set"
	BrightnessAdjust BrightnessMode = "adjust"
)

// Service 控制面操作：构造写命令、下发并对快照做乐观更新
type Service struct {
	sender Sender
	store  *state.Store
	cat    *catalog.Catalog
	log    *zap.Logger

	mu    sync.RWMutex
	model *catalog.Model
}

// NewService 创建控制服务
func NewService(sender Sender, store *state.Store, cat *catalog.Catalog, logger *zap.Logger) *Service {
	return &Service{sender: sender, store: store, cat: cat, log: logging.OrNop(logger)}
}

// SetModel 切换当前型号
func (s *Service) SetModel(m *catalog.Model) {
	s.mu.Lock()
	s.model = m
	s.mu.Unlock()
}

// Model 当前型号，未选择时为 nil
func (s *Service) Model() *catalog.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// Catalog 型号目录
func (s *Service) Catalog() *catalog.Catalog { return s.cat }

// Snapshot 当前状态快照
func (s *Service) Snapshot() state.Snapshot { return s.store.Snapshot() }

// SetBrightness 设置或增减亮度，结果截断到 0-100
func (s *Service) SetBrightness(ctx context.Context, mode BrightnessMode, value float64) (Result, error) {
	if _, err := s.require(func(m *catalog.Model) bool { return m.Brightness }); err != nil {
		return Result{}, err
	}

	pct := value
	switch mode {
	case BrightnessSet, "":
	case BrightnessAdjust:
		cur := s.store.Snapshot().Brightness
		if cur < 0 {
			cur = 0
		}
		pct = cur + value
	default:
		return Result{}, fmt.Errorf("%w: brightness mode %q", ErrInvalidArgument, mode)
	}

	raw := nova.BrightnessRaw(pct)
	f := nova.BuildWrite(nova.RegBrightness, []byte{raw}, nova.DestAllCards)
	return s.write(ctx, f, func() {
		s.store.SetBrightness(nova.BrightnessPercent(raw), state.SourceIntent)
	})
}

// SetDisplayMode 切换显示模式（正常/冻结/黑屏）
func (s *Service) SetDisplayMode(ctx context.Context, id string) (Result, error) {
	return s.choose(ctx, func(m *catalog.Model) []catalog.Choice { return m.DisplayModes }, id, state.PropDisplayMode)
}

// SetInput 切换输入源
func (s *Service) SetInput(ctx context.Context, id string) (Result, error) {
	return s.choose(ctx, func(m *catalog.Model) []catalog.Choice { return m.Inputs }, id, state.PropActiveInput)
}

// LoadPreset 调用预设
func (s *Service) LoadPreset(ctx context.Context, id string) (Result, error) {
	return s.choose(ctx, func(m *catalog.Model) []catalog.Choice { return m.Presets }, id, state.PropActivePreset)
}

// SetWorkingMode 切换工作模式
func (s *Service) SetWorkingMode(ctx context.Context, id string) (Result, error) {
	return s.choose(ctx, func(m *catalog.Model) []catalog.Choice { return m.WorkingModes }, id, state.PropWorkingMode)
}

// SetScaling 缩放方式，不影响快照
func (s *Service) SetScaling(ctx context.Context, id string) (Result, error) {
	return s.choose(ctx, func(m *catalog.Model) []catalog.Choice { return m.Scaling }, id, "")
}

// SetPIP 画中画开关，不影响快照
func (s *Service) SetPIP(ctx context.Context, id string) (Result, error) {
	return s.choose(ctx, func(m *catalog.Model) []catalog.Choice { return m.PIP }, id, "")
}

// SetTestPattern 测试画面，所有型号可用
func (s *Service) SetTestPattern(ctx context.Context, id string) (Result, error) {
	if s.Model() == nil {
		return Result{}, ErrNoModel
	}
	ch, err := s.cat.TestPattern(id)
	if err != nil {
		return Result{}, err
	}
	return s.write(ctx, ch.Command(), nil)
}

// Take 预监切主（vx6s）
func (s *Service) Take(ctx context.Context) (Result, error) {
	m, err := s.require(func(m *catalog.Model) bool { return m.Take != nil })
	if err != nil {
		return Result{}, err
	}
	return s.write(ctx, m.Take.Command(), nil)
}

// RawQuery 诊断用读命令
func (s *Service) RawQuery(ctx context.Context, reg nova.Register, length uint16, dest nova.Destination) (Result, error) {
	f := nova.BuildQuery(reg, length, dest)
	resp, err := s.sender.SendCommand(ctx, f)
	if errors.Is(err, session.ErrNotConnected) {
		return Result{Frame: f.String()}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Transmitted: true, Frame: f.String(), Data: resp.Hex()}, nil
}

func (s *Service) require(has func(*catalog.Model) bool) (*catalog.Model, error) {
	m := s.Model()
	if m == nil {
		return nil, ErrNoModel
	}
	if !has(m) {
		return nil, fmt.Errorf("%w: %s", ErrCapabilityUnsupported, m.ID)
	}
	return m, nil
}

func (s *Service) choose(ctx context.Context, list func(*catalog.Model) []catalog.Choice, id string, prop state.Property) (Result, error) {
	m, err := s.require(func(m *catalog.Model) bool { return len(list(m)) > 0 })
	if err != nil {
		return Result{}, err
	}
	ch, err := catalog.Find(list(m), id)
	if err != nil {
		return Result{}, err
	}
	var apply func()
	if prop != "" {
		apply = func() {
			if _, err := s.store.Set(prop, ch.ID, state.SourceIntent); err != nil {
				s.log.Warn("optimistic update failed", zap.String("property", string(prop)), zap.Error(err))
			}
		}
	}
	return s.write(ctx, ch.Command(), apply)
}

// write 先做乐观更新再下发；未连接时不视为错误
func (s *Service) write(ctx context.Context, f nova.Frame, apply func()) (Result, error) {
	if apply != nil {
		apply()
	}
	res := Result{Frame: f.String()}
	_, err := s.sender.SendCommand(ctx, f)
	switch {
	case err == nil:
		res.Transmitted = true
	case errors.Is(err, session.ErrNotConnected):
		s.log.Debug("command authored offline", zap.String("register", f.Register().String()))
	default:
		return res, err
	}
	return res, nil
}

package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/catalog"
	"github.com/taoyao-code/nova-gateway/internal/logging"
	"github.com/taoyao-code/nova-gateway/internal/metrics"
	"github.com/taoyao-code/nova-gateway/internal/outbound"
	"github.com/taoyao-code/nova-gateway/internal/protocol/nova"
	"github.com/taoyao-code/nova-gateway/internal/session"
	"github.com/taoyao-code/nova-gateway/internal/state"
)

// DefaultInterval 默认轮询间隔
const DefaultInterval = 2 * time.Second

// Querier 查询原语（由会话提供）
type Querier interface {
	Query(ctx context.Context, f nova.Frame) (outbound.Response, error)
}

// Options 轮询参数
type Options struct {
	Interval time.Duration
	Logger   *zap.Logger
	Metrics  *metrics.AppMetrics
}

// Poller 定时查询亮度、显示模式与当前输入源，并写入状态快照。
// 每个步骤相互独立，单步失败不影响本轮其余步骤。
type Poller struct {
	q        Querier
	store    *state.Store
	interval time.Duration
	log      *zap.Logger
	m        *metrics.AppMetrics

	mu     sync.Mutex
	model  *catalog.Model
	input  InputStrategy
	cancel context.CancelFunc
	cycles uint64
}

// New 创建轮询器
func New(q Querier, store *state.Store, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Poller{
		q:        q,
		store:    store,
		interval: opts.Interval,
		log:      logging.OrNop(opts.Logger),
		m:        opts.Metrics,
	}
}

// SetModel 切换型号描述，下一轮生效
func (p *Poller) SetModel(m *catalog.Model) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = m
	p.input = nil
	if m != nil && len(m.Inputs) > 0 {
		p.input = StrategyFor(m.InputPoll)
	}
}

// Start 立即执行一轮，之后按间隔执行；重复调用会先停止上一轮循环
func (p *Poller) Start() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	interval := p.interval
	p.mu.Unlock()

	p.log.Info("poller started", zap.Duration("interval", interval))
	go p.run(ctx, interval)
}

// SetInterval 调整轮询间隔，下次 Start 生效
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
}

// Stop 停止轮询，不等待进行中的查询返回
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.log.Info("poller stopped", zap.Uint64("cycles", p.cycles))
	}
}

// Running 是否在轮询
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce 执行一轮轮询
func (p *Poller) PollOnce(ctx context.Context) {
	p.mu.Lock()
	model, input := p.model, p.input
	p.cycles++
	p.mu.Unlock()
	if model == nil {
		return
	}

	start := time.Now()
	if model.Brightness {
		p.step(ctx, "brightness", p.pollBrightness)
	}
	if len(model.DisplayModes) > 0 {
		p.step(ctx, "display_mode", p.pollDisplayMode)
	}
	if input != nil {
		p.step(ctx, "input", func(ctx context.Context) error {
			return p.pollInput(ctx, input, model.Inputs)
		})
	}
	if p.m != nil {
		p.m.PollDuration.Observe(time.Since(start).Seconds())
	}
}

// step 执行单个步骤，错误与 panic 均在此吸收
func (p *Poller) step(ctx context.Context, name string, fn func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.fail(name, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(ctx); err != nil {
		if errors.Is(err, session.ErrNotConnected) || errors.Is(err, context.Canceled) {
			return
		}
		p.fail(name, err)
	}
}

func (p *Poller) fail(name string, err error) {
	p.log.Debug("poll error", zap.String("step", name), zap.Error(err))
	if p.m != nil {
		p.m.PollErrors.WithLabelValues(name).Inc()
	}
}

func (p *Poller) pollBrightness(ctx context.Context) error {
	resp, err := p.q.Query(ctx, nova.BuildQuery(nova.RegBrightness, 1, nova.DestAllCards))
	if err != nil {
		return err
	}
	v, ok := nova.DecodeBrightness(resp.Payload)
	if !ok {
		return nil
	}
	return p.apply(ctx, func() error {
		p.store.SetBrightness(v, state.SourcePoll)
		return nil
	})
}

func (p *Poller) pollDisplayMode(ctx context.Context) error {
	resp, err := p.q.Query(ctx, nova.BuildQuery(nova.RegDisplayMode, 2, nova.DestController))
	if err != nil {
		return err
	}
	id, ok := nova.DecodeDisplayMode(resp.Payload)
	if !ok {
		return nil
	}
	return p.apply(ctx, func() error {
		_, err := p.store.Set(state.PropDisplayMode, id, state.SourcePoll)
		return err
	})
}

func (p *Poller) pollInput(ctx context.Context, s InputStrategy, inputs []catalog.Choice) error {
	resp, err := p.q.Query(ctx, s.Query())
	if err != nil {
		return err
	}
	id, ok := s.Decode(resp.Payload, inputs)
	if !ok {
		return nil
	}
	return p.apply(ctx, func() error {
		_, err := p.store.Set(state.PropActiveInput, id, state.SourcePoll)
		return err
	})
}

// apply 在 p.mu 下写入快照，Stop 返回后不再有轮询结果落入快照
func (p *Poller) apply(ctx context.Context, write func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil {
		return nil
	}
	return write()
}

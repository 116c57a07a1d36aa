package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/logging"
	"github.com/taoyao-code/nova-gateway/internal/metrics"
	"github.com/taoyao-code/nova-gateway/internal/session"
	"github.com/taoyao-code/nova-gateway/internal/state"
)

// DispatcherOptions 分发参数
type DispatcherOptions struct {
	QueueSize   int
	SinkTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.AppMetrics
}

// Dispatcher 把状态变更与连接状态排队后依次投递给各 Sink。
// 写入方回调只做入队，队列满时丢弃并记录日志。
type Dispatcher struct {
	sinks   []Sink
	queue   chan Event
	timeout time.Duration
	log     *zap.Logger
	m       *metrics.AppMetrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	unwatch []func()
}

// NewDispatcher 创建分发器
func NewDispatcher(opts DispatcherOptions, sinks ...Sink) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 10 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, opts.QueueSize),
		timeout: opts.SinkTimeout,
		log:     logging.OrNop(opts.Logger),
		m:       opts.Metrics,
	}
}

// Attach 订阅状态存储与会话状态
func (d *Dispatcher) Attach(store *state.Store, sess *session.Session) {
	cancel := store.Subscribe(func(c state.Change) { d.Enqueue(ChangeEvent(c)) })
	d.mu.Lock()
	d.unwatch = append(d.unwatch, cancel)
	d.mu.Unlock()
	if sess != nil {
		sess.OnStatus(func(s session.StatusInfo) { d.Enqueue(StatusEvent(s)) })
	}
}

// Enqueue 入队，不阻塞
func (d *Dispatcher) Enqueue(ev Event) {
	select {
	case d.queue <- ev:
	default:
		d.log.Warn("notify queue full, event dropped", zap.String("event", ev.Event), zap.String("id", ev.ID))
	}
}

// Start 启动投递协程
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx, d.done)
}

// Stop 取消订阅并等待投递协程退出
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done, unwatch := d.cancel, d.done, d.unwatch
	d.cancel, d.unwatch = nil, nil
	d.mu.Unlock()

	for _, fn := range unwatch {
		fn()
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Publish(sctx, ev)
		cancel()
		if err == nil {
			continue
		}
		if d.m != nil {
			d.m.NotifyPublishErr.WithLabelValues(s.Name()).Inc()
		}
		d.log.Warn("notify publish failed",
			zap.String("sink", s.Name()),
			zap.String("event", ev.Event),
			zap.Error(err),
		)
	}
}

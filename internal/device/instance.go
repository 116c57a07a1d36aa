// Package device 组装单台处理器的会话、轮询、状态与控制，并处理配置变更
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/catalog"
	"github.com/taoyao-code/nova-gateway/internal/config"
	"github.com/taoyao-code/nova-gateway/internal/control"
	"github.com/taoyao-code/nova-gateway/internal/logging"
	"github.com/taoyao-code/nova-gateway/internal/metrics"
	"github.com/taoyao-code/nova-gateway/internal/poller"
	"github.com/taoyao-code/nova-gateway/internal/session"
	"github.com/taoyao-code/nova-gateway/internal/state"
)

// VarConnectionStatus 连接状态变量
const VarConnectionStatus = "connection_status"

// Options 实例依赖
type Options struct {
	Catalog *catalog.Catalog
	Logger  *zap.Logger
	Metrics *metrics.AppMetrics
	// Session 会话超时与拨号参数，BringUp/Logger/Metrics 由实例填充
	Session session.Options
}

// Instance 一台处理器的运行实例。
// 会话进入 Connected 后启动轮询；断线时停止轮询并把状态复位为未知。
type Instance struct {
	cat   *catalog.Catalog
	log   *zap.Logger
	m     *metrics.AppMetrics
	store *state.Store
	sess  *session.Session
	poll  *poller.Poller
	ctl   *control.Service

	mu      sync.Mutex
	cfg     config.DeviceConfig
	inited  bool
	unwatch func()
}

// New 创建实例，调用 Init 之前不连接
func New(opts Options) *Instance {
	log := logging.OrNop(opts.Logger)
	cat := opts.Catalog
	if cat == nil {
		var err error
		if cat, err = catalog.Default(); err != nil {
			panic(fmt.Sprintf("embedded catalog: %v", err))
		}
	}

	store := state.NewStore()
	sopts := opts.Session
	sopts.Logger = log.Named("session")
	sopts.Metrics = opts.Metrics
	sopts.BringUp = session.BringUp(store, cat, log.Named("bringup"))
	sess := session.New(sopts)

	inst := &Instance{
		cat:   cat,
		log:   log,
		m:     opts.Metrics,
		store: store,
		sess:  sess,
		ctl:   control.NewService(sess, store, cat, log.Named("control")),
	}
	inst.poll = poller.New(sess, store, poller.Options{Logger: log.Named("poller"), Metrics: opts.Metrics})

	sess.OnConnected(inst.poll.Start)
	sess.OnDisconnected(func() {
		inst.poll.Stop()
		store.Reset()
	})
	inst.unwatch = store.Subscribe(inst.recordChange)
	return inst
}

// Init 按配置选择型号并连接。
// 型号未知返回错误；连接失败仅体现在会话状态上。
func (i *Instance) Init(ctx context.Context, cfg config.DeviceConfig) error {
	i.mu.Lock()
	i.inited = true
	i.mu.Unlock()
	return i.apply(ctx, cfg)
}

// ConfigUpdated 配置变更。仅当主机、端口或型号变化时重建连接。
func (i *Instance) ConfigUpdated(ctx context.Context, cfg config.DeviceConfig) error {
	i.mu.Lock()
	prev, inited := i.cfg, i.inited
	i.mu.Unlock()

	if inited && prev.Host == cfg.Host && prev.Port == cfg.Port && prev.Model == cfg.Model {
		i.log.Debug("device config unchanged, connection kept")
		return nil
	}
	return i.Init(ctx, cfg)
}

func (i *Instance) apply(ctx context.Context, cfg config.DeviceConfig) error {
	var model *catalog.Model
	if cfg.Model != "" {
		m, err := i.cat.Lookup(cfg.Model)
		if err != nil {
			i.setModel(nil)
			i.sess.SetOffline(session.MsgNoModel)
			return err
		}
		model = m
	}

	i.mu.Lock()
	i.cfg = cfg
	i.mu.Unlock()

	i.setModel(model)
	if cfg.PollInterval > 0 {
		i.poll.SetInterval(cfg.PollInterval)
	}

	if model == nil {
		i.log.Info("no model selected")
		i.sess.SetOffline(session.MsgNoModel)
		return nil
	}

	port := cfg.Port
	if port == 0 {
		port = model.TCPPort()
	}
	i.log.Info("device configured",
		zap.String("model", model.ID),
		zap.String("host", cfg.Host),
		zap.Int("port", port),
	)

	err := i.sess.Reconfigure(ctx, session.Target{Host: cfg.Host, Port: port})
	if err != nil && !errors.Is(err, session.ErrSuperseded) {
		i.log.Warn("device connect failed", zap.Error(err))
	}
	return nil
}

func (i *Instance) setModel(m *catalog.Model) {
	i.ctl.SetModel(m)
	i.poll.SetModel(m)
}

// Reconnect 按当前配置重新连接
func (i *Instance) Reconnect(ctx context.Context) error {
	if i.ctl.Model() == nil {
		return control.ErrNoModel
	}
	return i.sess.Connect(ctx)
}

// Destroy 断开连接并停止轮询
func (i *Instance) Destroy() {
	i.poll.Stop()
	_ = i.sess.Close()
	i.mu.Lock()
	unwatch := i.unwatch
	i.unwatch = nil
	i.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
	i.log.Info("device instance destroyed")
}

// Config 当前设备配置
func (i *Instance) Config() config.DeviceConfig {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cfg
}

// Status 会话状态
func (i *Instance) Status() session.StatusInfo { return i.sess.Status() }

// Store 状态快照
func (i *Instance) Store() *state.Store { return i.store }

// Session 设备会话
func (i *Instance) Session() *session.Session { return i.sess }

// Control 控制服务
func (i *Instance) Control() *control.Service { return i.ctl }

// Poller 轮询器
func (i *Instance) Poller() *poller.Poller { return i.poll }

// Catalog 型号目录
func (i *Instance) Catalog() *catalog.Catalog { return i.cat }

// Variables 展示变量，附带连接状态
func (i *Instance) Variables() map[string]string {
	vars := i.ctl.Variables()
	vars[VarConnectionStatus] = i.sess.Status().Status.String()
	return vars
}

func (i *Instance) recordChange(c state.Change) {
	if i.m != nil {
		i.m.StateChanges.WithLabelValues(string(c.Property), string(c.Source)).Inc()
	}
	i.log.Debug("state changed",
		zap.String("property", string(c.Property)),
		zap.Any("old", c.Old),
		zap.Any("new", c.New),
		zap.String("source", string(c.Source)),
	)
}

package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/nova-gateway/internal/config"
	"github.com/taoyao-code/nova-gateway/internal/device"
	"github.com/taoyao-code/nova-gateway/internal/metrics"
	"github.com/taoyao-code/nova-gateway/internal/notify"
	redisstorage "github.com/taoyao-code/nova-gateway/internal/storage/redis"
)

// Notifier 事件分发组件
type Notifier struct {
	Hub        *notify.Hub
	Redis      *notify.RedisPublisher
	Webhook    *notify.WebhookPusher
	Dispatcher *notify.Dispatcher
}

// NewNotifier 按配置组装事件去向：websocket 总线始终启用，Redis 与 Webhook 可选
func NewNotifier(cfg cfgpkg.NotifyConfig, store *redisstorage.StateStore, appm *metrics.AppMetrics, logger *zap.Logger) *Notifier {
	n := &Notifier{Hub: notify.NewHub()}
	sinks := []notify.Sink{n.Hub}

	if store != nil {
		n.Redis = notify.NewRedisPublisher(store)
		sinks = append(sinks, n.Redis)
		logger.Info("redis event publisher enabled", zap.String("channel", store.Channel()))
	}
	if cfg.Webhook.URL != "" {
		n.Webhook = notify.NewWebhookPusher(nil, cfg.Webhook.URL, cfg.Webhook.APIKey, cfg.Webhook.Secret)
		sinks = append(sinks, n.Webhook)
		logger.Info("webhook pusher enabled", zap.String("url", cfg.Webhook.URL))
	}

	n.Dispatcher = notify.NewDispatcher(notify.DispatcherOptions{
		Logger:  logger.Named("notify"),
		Metrics: appm,
	}, sinks...)
	return n
}

// Start 订阅设备并开始投递；Redis 启用时先写入一次完整快照
func (n *Notifier) Start(ctx context.Context, dev *device.Instance, logger *zap.Logger) {
	if n.Redis != nil {
		sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := n.Redis.SeedSnapshot(sctx, dev.Store().Snapshot(), dev.Status()); err != nil {
			logger.Warn("seed redis snapshot failed", zap.Error(err))
		}
		cancel()
	}
	n.Dispatcher.Attach(dev.Store(), dev.Session())
	n.Dispatcher.Start()
}

// Stop 停止投递
func (n *Notifier) Stop() {
	n.Dispatcher.Stop()
}

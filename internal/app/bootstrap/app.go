package bootstrap

import (
	"context"
	"errors"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/app"
	cfgpkg "github.com/taoyao-code/nova-gateway/internal/config"
	"github.com/taoyao-code/nova-gateway/internal/health"
	"github.com/taoyao-code/nova-gateway/internal/metrics"
)

// Version 构建版本，由 -ldflags 注入
var Version = "dev"

// Run 统一启动流程，收到 SIGINT/SIGTERM 后优雅关闭
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Serve(ctx, cfg, log, nil)
}

// Serve 启动全部组件并阻塞到 ctx 结束。
// ln 非空时 HTTP 在该监听上服务，否则监听 cfg.HTTP.Addr。
func Serve(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger, ln net.Listener) error {
	gatewayID := app.GenerateServerID()
	log = log.With(zap.String("gateway_id", gatewayID))
	log.Info("starting nova gateway", zap.String("version", Version))

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics()
	metricsHandler := metrics.Handler(reg)
	ready := health.New()

	cat, err := app.LoadCatalog(cfg.Catalog.Path, log)
	if err != nil {
		log.Error("catalog load failed", zap.String("path", cfg.Catalog.Path), zap.Error(err))
		return err
	}
	ready.SetCatalogReady(true)

	// ========== 阶段2: Redis（可选，启用后连接失败直接返回）==========
	redisClient, err := app.NewRedisClient(cfg.Redis, gatewayID, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// ========== 阶段3: 设备实例与事件分发 ==========
	dev := app.NewDevice(cfg.Device, cat, appm, log)
	defer dev.Destroy()

	mirror := app.NewRedisStateStore(redisClient, cfg.Redis)
	notifier := app.NewNotifier(cfg.Notify, mirror, appm, log)
	notifier.Start(ctx, dev, log)
	defer notifier.Stop()

	healthAgg := app.NewHealthAggregator(dev.Session())
	app.AddRedisChecker(healthAgg, mirror)
	log.Info("health aggregator initialized")

	// ========== 阶段4: HTTP 服务 ==========
	httpSrv := app.NewHTTPServer(cfg.HTTP, cfg.Metrics, metricsHandler, ready.Ready)
	httpSrv.Register(func(r *gin.Engine) {
		app.RegisterAPIRoutes(r, dev, notifier.Hub, cfg.API, appm, log)
		app.RegisterHealthRoutes(r, healthAgg)
	})

	httpErr := make(chan error, 1)
	go func() {
		if ln != nil {
			httpErr <- httpSrv.Serve(ln)
			return
		}
		httpErr <- httpSrv.Start()
	}()
	ready.SetHTTPReady(true)
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段5: 连接处理器（失败只体现在会话状态上）==========
	go func() {
		if err := dev.Init(ctx, cfg.Device); err != nil {
			log.Error("device init failed", zap.String("model", cfg.Device.Model), zap.Error(err))
		}
	}()

	// ========== 阶段6: 等待关闭 ==========
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, gracefully shutting down...")
	case err := <-httpErr:
		if err != nil {
			log.Error("http server error", zap.Error(err))
			return err
		}
		return errors.New("http server exited")
	}

	ready.SetHTTPReady(false)
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(sctx)
	log.Info("http server stopped")

	log.Info("shutdown complete")
	return nil
}

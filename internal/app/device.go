package app

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/catalog"
	cfgpkg "github.com/taoyao-code/nova-gateway/internal/config"
	"github.com/taoyao-code/nova-gateway/internal/device"
	"github.com/taoyao-code/nova-gateway/internal/metrics"
	"github.com/taoyao-code/nova-gateway/internal/session"
)

// LoadCatalog 加载型号目录；path 为空使用内置目录
func LoadCatalog(path string, logger *zap.Logger) (*catalog.Catalog, error) {
	if path == "" {
		cat, err := catalog.Default()
		if err != nil {
			return nil, err
		}
		logger.Info("catalog loaded", zap.String("source", "embedded"), zap.Int("models", len(cat.Models)))
		return cat, nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("catalog loaded", zap.String("source", path), zap.Int("models", len(cat.Models)))
	return cat, nil
}

// SessionOptions 设备配置中的超时参数
func SessionOptions(cfg cfgpkg.DeviceConfig) session.Options {
	return session.Options{
		DialTimeout:    cfg.DialTimeout,
		RequestTimeout: cfg.RequestTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		StallLimit:     cfg.StallLimit,
	}
}

// NewDevice 创建处理器实例，调用 Init 前不连接
func NewDevice(cfg cfgpkg.DeviceConfig, cat *catalog.Catalog, appm *metrics.AppMetrics, logger *zap.Logger) *device.Instance {
	return device.New(device.Options{
		Catalog: cat,
		Logger:  logger.Named("device"),
		Metrics: appm,
		Session: SessionOptions(cfg),
	})
}

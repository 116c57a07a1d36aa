package app

import (
	"net/http"

	cfgpkg "github.com/taoyao-code/nova-gateway/internal/config"
	"github.com/taoyao-code/nova-gateway/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器；指标关闭时不注册指标路由
func NewHTTPServer(cfg cfgpkg.HTTPConfig, mc cfgpkg.MetricsConfig, metricsHandler http.Handler, readyFn func() bool) *httpserver.Server {
	path := mc.Path
	if !mc.Enable {
		path, metricsHandler = "", nil
	}
	return httpserver.New(cfg, path, metricsHandler, readyFn)
}

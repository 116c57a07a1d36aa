package health

import "sync/atomic"

// Readiness 进程级就绪标记：目录已加载且 HTTP 已监听
type Readiness struct {
	catalogReady atomic.Bool
	httpReady    atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetCatalogReady(v bool) { r.catalogReady.Store(v) }
func (r *Readiness) SetHTTPReady(v bool)    { r.httpReady.Store(v) }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.catalogReady.Load() && r.httpReady.Load()
}

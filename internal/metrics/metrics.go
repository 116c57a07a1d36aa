package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	FramesTx         *prometheus.CounterVec // labels: kind=query|write
	FramesRx         prometheus.Counter
	BytesRx          prometheus.Counter
	ChecksumFail     prometheus.Counter
	ResyncBytes      prometheus.Counter
	UnmatchedFrames  prometheus.Counter
	RequestTimeouts  prometheus.Counter
	PendingRequests  prometheus.Gauge
	SessionStatus    prometheus.Gauge // 0=disconnected 1=connecting 2=connected 3=failure
	PollDuration     prometheus.Histogram
	PollErrors       *prometheus.CounterVec // labels: step
	StateChanges     *prometheus.CounterVec // labels: property, source
	APIRateLimited   *prometheus.CounterVec // labels: kind
	NotifyPublishErr *prometheus.CounterVec // labels: sink
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		FramesTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_frames_tx_total",
			Help: "Frames written to the processor.",
		}, []string{"kind"}),
		FramesRx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nova_frames_rx_total",
			Help: "Valid frames extracted from the inbound stream.",
		}),
		BytesRx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nova_bytes_received_total",
			Help: "Total bytes received from the processor.",
		}),
		ChecksumFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nova_checksum_fail_total",
			Help: "Inbound frames dropped on checksum mismatch.",
		}),
		ResyncBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nova_resync_bytes_total",
			Help: "Bytes discarded while resynchronizing the inbound stream.",
		}),
		UnmatchedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nova_unmatched_frames_total",
			Help: "Valid frames with no registered waiter.",
		}),
		RequestTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nova_request_timeout_total",
			Help: "Requests evicted after waiting too long for a reply.",
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nova_pending_requests",
			Help: "Sequence ids currently awaiting a reply.",
		}),
		SessionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nova_session_status",
			Help: "Session status: 0=disconnected 1=connecting 2=connected 3=failure.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nova_poll_duration_seconds",
			Help:    "Duration of one poll cycle.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_poll_errors_total",
			Help: "Poll step failures by step.",
		}, []string{"step"}),
		StateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_state_changes_total",
			Help: "Snapshot transitions by property and writer.",
		}, []string{"property", "source"}),
		APIRateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_api_rate_limited_total",
			Help: "Control API requests rejected by the rate limiter, by command kind.",
		}, []string{"kind"}),
		NotifyPublishErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_notify_errors_total",
			Help: "Change notification delivery failures by sink.",
		}, []string{"sink"}),
	}
	reg.MustRegister(
		m.FramesTx, m.FramesRx, m.BytesRx, m.ChecksumFail, m.ResyncBytes,
		m.UnmatchedFrames, m.RequestTimeouts, m.PendingRequests, m.SessionStatus,
		m.PollDuration, m.PollErrors, m.StateChanges, m.APIRateLimited, m.NotifyPublishErr,
	)
	return m
}

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/nova-gateway/internal/session"
)

// mockChecker 模拟检查器
type mockChecker struct {
	name   string
	status Status
	delay  time.Duration
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return CheckResult{Status: StatusUnhealthy, Message: ctx.Err().Error()}
		}
	}
	return CheckResult{
		Status:  m.status,
		Message: "mock",
		Latency: time.Millisecond,
	}
}

func TestAggregator(t *testing.T) {
	t.Run("全部健康", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{name: "device", status: StatusHealthy},
			&mockChecker{name: "redis", status: StatusHealthy},
		)

		if status := agg.OverallStatus(context.Background()); status != StatusHealthy {
			t.Errorf("期望StatusHealthy，实际: %v", status)
		}
		if !agg.Ready(context.Background()) {
			t.Error("全部健康时应该Ready")
		}
	})

	t.Run("部分降级", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{name: "device", status: StatusDegraded},
			&mockChecker{name: "redis", status: StatusHealthy},
		)

		if status := agg.OverallStatus(context.Background()); status != StatusDegraded {
			t.Errorf("期望StatusDegraded，实际: %v", status)
		}
		// 降级状态仍然Ready
		if !agg.Ready(context.Background()) {
			t.Error("降级状态应该仍然Ready")
		}
	})

	t.Run("部分不健康", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{name: "device", status: StatusUnhealthy},
			&mockChecker{name: "redis", status: StatusDegraded},
		)

		if status := agg.OverallStatus(context.Background()); status != StatusUnhealthy {
			t.Errorf("期望StatusUnhealthy，实际: %v", status)
		}
		if agg.Ready(context.Background()) {
			t.Error("不健康状态不应该Ready")
		}
	})

	t.Run("检查器超时", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{name: "slow", status: StatusHealthy, delay: time.Second})
		agg.timeout = 20 * time.Millisecond

		start := time.Now()
		results := agg.CheckAll(context.Background())
		if time.Since(start) > 500*time.Millisecond {
			t.Fatal("超时未生效")
		}
		if results["slow"].Status != StatusUnhealthy {
			t.Errorf("超时应为不健康，实际: %v", results["slow"].Status)
		}
	})

	t.Run("动态添加检查器", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{name: "initial", status: StatusHealthy})
		agg.AddChecker(&mockChecker{name: "added", status: StatusHealthy})

		if results := agg.CheckAll(context.Background()); len(results) != 2 {
			t.Errorf("期望2个结果，实际: %d", len(results))
		}
	})

	t.Run("Alive始终返回true", func(t *testing.T) {
		if !NewAggregator().Alive() {
			t.Error("Alive应该始终返回true")
		}
	})
}

type fakeDevice struct {
	info session.StatusInfo
	last time.Time
}

func (f fakeDevice) Status() session.StatusInfo { return f.info }
func (f fakeDevice) LastResponse() time.Time    { return f.last }
func (f fakeDevice) Pending() int               { return 0 }

func TestDeviceChecker(t *testing.T) {
	tests := []struct {
		name   string
		status session.Status
		msg    string
		want   Status
	}{
		{"已连接", session.StatusConnected, "Connected", StatusHealthy},
		{"离线编程", session.StatusDisconnected, session.MsgNoHost, StatusDegraded},
		{"连接中", session.StatusConnecting, "Connecting to 10.0.0.2", StatusDegraded},
		{"连接失败", session.StatusConnectionFailure, "Cannot connect to 10.0.0.2", StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewDeviceChecker(fakeDevice{
				info: session.StatusInfo{Status: tt.status, Message: tt.msg},
				last: time.Now().Add(-time.Second),
			})
			r := c.Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("期望%v，实际: %v", tt.want, r.Status)
			}
			if r.Message != tt.msg {
				t.Errorf("message = %q", r.Message)
			}
			if _, ok := r.Details["last_response_ago"]; !ok {
				t.Error("缺少 last_response_ago")
			}
		})
	}
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterHTTPRoutes(r, NewAggregator(&mockChecker{name: "device", status: StatusUnhealthy}))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("/health code=%d", rr.Code)
	}
	var report HealthReport
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Checks["device"].Status != StatusUnhealthy {
		t.Errorf("report = %+v", report)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("/health/ready code=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/health/live code=%d", rr.Code)
	}
}

func TestReadiness(t *testing.T) {
	r := New()
	if r.Ready() {
		t.Fatal("初始不应就绪")
	}
	r.SetCatalogReady(true)
	r.SetHTTPReady(true)
	if !r.Ready() {
		t.Fatal("应就绪")
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAppMetricsExposed(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.FramesTx.WithLabelValues("query").Inc()
	m.StateChanges.WithLabelValues("brightness", "poll").Add(2)
	m.PendingRequests.Set(3)

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{`nova_frames_tx_total{kind="query"} 1`, "nova_pending_requests 3", `nova_state_changes_total{property="brightness",source="poll"} 2`, "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Errorf("metric %s missing", name)
		}
	}
}

package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	redisstorage "github.com/taoyao-code/nova-gateway/internal/storage/redis"
)

type fakePool struct {
	err  error
	pool redisstorage.PoolSummary
}

func (f *fakePool) Addr() string { return "10.0.0.5:6379" }

func (f *fakePool) RoundTrip(context.Context) (time.Duration, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 300 * time.Microsecond, nil
}

func (f *fakePool) Pool() redisstorage.PoolSummary { return f.pool }

type fakeMirror redisstorage.MirrorStatus

func (f fakeMirror) Status() redisstorage.MirrorStatus { return redisstorage.MirrorStatus(f) }

func TestRedisChecker(t *testing.T) {
	now := time.Now()
	base := redisstorage.MirrorStatus{Channel: "nova:state", SnapshotKey: "nova:snapshot", Published: 7, LastOK: now}

	tests := []struct {
		name    string
		pool    *fakePool
		mirror  StateMirror
		status  Status
		message string
	}{
		{"正常", &fakePool{}, fakeMirror(base), StatusHealthy, "ok"},
		{"PING失败", &fakePool{err: errors.New("connection refused")}, fakeMirror(base), StatusUnhealthy, "ping failed: connection refused"},
		{"连接池饱和", &fakePool{pool: redisstorage.PoolSummary{TotalConns: 10, Utilization: 0.95}}, nil, StatusDegraded, "connection pool near limit"},
		{"发布失败", &fakePool{}, fakeMirror(func() redisstorage.MirrorStatus {
			m := base
			m.LastError = "publish nova:state: READONLY"
			m.LastErrorAt = now.Add(time.Second)
			return m
		}()), StatusDegraded, "state mirror write failing: publish nova:state: READONLY"},
		{"失败后已恢复", &fakePool{}, fakeMirror(func() redisstorage.MirrorStatus {
			m := base
			m.LastError = "publish nova:state: READONLY"
			m.LastErrorAt = now.Add(-time.Minute)
			return m
		}()), StatusHealthy, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewRedisChecker(tt.pool, tt.mirror).Check(context.Background())
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.message, res.Message)
			assert.Equal(t, "10.0.0.5:6379", res.Details["addr"])
			if tt.mirror != nil && tt.pool.err == nil {
				assert.Equal(t, "nova:state", res.Details["channel"])
				assert.Equal(t, "nova:snapshot", res.Details["snapshot_key"])
				assert.Equal(t, uint64(7), res.Details["published"])
			}
		})
	}
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/nova-gateway/internal/session"
	"github.com/taoyao-code/nova-gateway/internal/state"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(4)
	b, cancelB := h.Subscribe(1)
	defer cancelA()
	assert.Equal(t, 2, h.Subscribers())

	ev := ChangeEvent(state.Change{Property: state.PropBrightness, Old: -1.0, New: 50.0, Source: state.SourcePoll})
	require.NoError(t, h.Publish(context.Background(), ev))
	require.NoError(t, h.Publish(context.Background(), ev))

	assert.Equal(t, ev.ID, (<-a).ID)
	assert.Equal(t, ev.ID, (<-b).ID)
	assert.Equal(t, uint64(1), h.Dropped(), "慢订阅者丢弃而不阻塞")

	cancelB()
	cancelB()
	assert.Equal(t, 1, h.Subscribers())
	_, ok := <-b
	assert.False(t, ok, "取消后通道关闭")
}

func TestEvents(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	ev := ChangeEvent(state.Change{Property: state.PropActiveInput, Old: "-1", New: "2", Source: state.SourceIntent, At: at})
	assert.Equal(t, EventStateChanged, ev.Event)
	assert.Equal(t, int64(1700000000123), ev.Timestamp)
	assert.Equal(t, "active_input", ev.Data["property"])
	assert.Equal(t, "intent", ev.Data["source"])
	assert.Len(t, ev.ID, 36)

	st := StatusEvent(session.StatusInfo{Status: session.StatusConnected, Message: "Connected", Since: at})
	assert.Equal(t, EventStatusChanged, st.Event)
	assert.Equal(t, "connected", st.Data["status"])
	assert.NotEqual(t, ev.ID, st.ID)
}

type fakeRedis struct {
	mu        sync.Mutex
	published [][]byte
	fields    map[string]any
	err       error
}

func (f *fakeRedis) Publish(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeRedis) SaveFields(_ context.Context, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fields == nil {
		f.fields = make(map[string]any)
	}
	for k, v := range fields {
		f.fields[k] = v
	}
	return nil
}

func TestRedisPublisher(t *testing.T) {
	store := &fakeRedis{}
	p := NewRedisPublisher(store)

	ev := ChangeEvent(state.Change{Property: state.PropBrightness, Old: -1.0, New: 62.5, Source: state.SourcePoll})
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, store.published, 1)

	var got Event
	require.NoError(t, json.Unmarshal(store.published[0], &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, 62.5, store.fields["brightness"])

	require.NoError(t, p.Publish(context.Background(), StatusEvent(session.StatusInfo{Status: session.StatusConnectionFailure, Message: "Cannot connect to 10.0.0.9"})))
	assert.Equal(t, "connection_failure", store.fields["status"])

	require.NoError(t, p.SeedSnapshot(context.Background(), state.NewStore().Snapshot(), session.StatusInfo{}))
	assert.Equal(t, "-1", store.fields["active_input"])

	store.err = errors.New("down")
	assert.Error(t, p.Publish(context.Background(), ev))
}

func TestWebhookPusherSigned(t *testing.T) {
	var got atomic.Pointer[http.Request]
	var body atomic.Pointer[[]byte]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got.Store(r)
		body.Store(&b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhookPusher(nil, srv.URL+"/hooks/nova", "key", "secret")
	ev := StatusEvent(session.StatusInfo{Status: session.StatusConnected})
	require.NoError(t, p.Publish(context.Background(), ev))

	r := got.Load()
	require.NotNil(t, r)
	assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
	ts, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
	require.NoError(t, err)
	canonical := buildCanonical(http.MethodPost, "/hooks/nova", ts, r.Header.Get("X-Nonce"), hashHex(*body.Load()))
	assert.True(t, VerifyHMAC("secret", canonical, r.Header.Get("X-Signature")))
	assert.False(t, VerifyHMAC("other", canonical, r.Header.Get("X-Signature")))
}

func TestWebhookPusherRetry(t *testing.T) {
	tests := []struct {
		name     string
		codes    []int
		attempts int32
		wantErr  bool
	}{
		{"5xx后成功", []int{503, 502, 200}, 3, false},
		{"4xx不重试", []int{400}, 1, true},
		{"重试耗尽", []int{500, 500, 500, 500}, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				i := int(n.Add(1)) - 1
				w.WriteHeader(tt.codes[min(i, len(tt.codes)-1)])
			}))
			defer srv.Close()

			p := NewWebhookPusher(nil, srv.URL, "k", "s")
			p.Backoff = []time.Duration{time.Millisecond}
			err := p.Publish(context.Background(), Event{ID: "x"})
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.attempts, n.Load())
		})
	}
}

type recordSink struct {
	name string
	err  error
	mu   sync.Mutex
	got  []Event
}

func (s *recordSink) Name() string { return s.name }

func (s *recordSink) Publish(_ context.Context, ev Event) error {
	s.mu.Lock()
	s.got = append(s.got, ev)
	s.mu.Unlock()
	return s.err
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestDispatcher(t *testing.T) {
	bad := &recordSink{name: "bad", err: errors.New("boom")}
	good := &recordSink{name: "good"}
	d := NewDispatcher(DispatcherOptions{}, bad, good)

	store := state.NewStore()
	d.Attach(store, nil)
	d.Start()

	store.SetBrightness(10, state.SourcePoll)
	store.SetBrightness(10, state.SourcePoll)
	_, _ = store.Set(state.PropActiveInput, "1", state.SourceIntent)

	require.Eventually(t, func() bool { return good.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, bad.count(), "失败的 Sink 不影响其它 Sink")

	d.Stop()
	store.SetBrightness(20, state.SourcePoll)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, good.count(), "停止后不再投递")
}

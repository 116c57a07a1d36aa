package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/nova-gateway/internal/api/middleware"
	"github.com/taoyao-code/nova-gateway/internal/config"
	"github.com/taoyao-code/nova-gateway/internal/device"
	"github.com/taoyao-code/nova-gateway/internal/notify"
	"github.com/taoyao-code/nova-gateway/internal/outbound"
	"github.com/taoyao-code/nova-gateway/internal/protocol/nova"
	"github.com/taoyao-code/nova-gateway/internal/session"
	"github.com/taoyao-code/nova-gateway/internal/session/sessiontest"
)

type testEnv struct {
	router *gin.Engine
	dev    *device.Instance
	hub    *notify.Hub
}

func newEnv(t *testing.T, cfg config.DeviceConfig, opts RouteOptions) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dev := device.New(device.Options{Session: session.Options{RequestTimeout: 500 * time.Millisecond}})
	t.Cleanup(dev.Destroy)
	require.NoError(t, dev.Init(context.Background(), cfg))

	hub := notify.NewHub()
	d := notify.NewDispatcher(notify.DispatcherOptions{}, hub)
	d.Attach(dev.Store(), dev.Session())
	d.Start()
	t.Cleanup(d.Stop)

	r := gin.New()
	RegisterRoutes(r, NewHandler(dev, hub, nil), opts)
	return &testEnv{router: r, dev: dev, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (int, StandardResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	var resp StandardResponse
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	}
	return rr.Code, resp
}

func dataMap(t *testing.T, resp StandardResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data = %#v", resp.Data)
	return m
}

func TestOfflineControl(t *testing.T) {
	env := newEnv(t, config.DeviceConfig{Model: "vx4s"}, RouteOptions{})

	code, resp := env.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, code)
	status := dataMap(t, resp)
	assert.Equal(t, "disconnected", status["status"])
	assert.Equal(t, session.MsgNoHost, status["message"])
	assert.Equal(t, "vx4s", status["model"])
	assert.NotEmpty(t, resp.RequestID)

	code, resp = env.do(t, http.MethodPost, "/api/v1/input", ChoiceRequest{ID: "1"})
	require.Equal(t, http.StatusOK, code)
	res := dataMap(t, resp)
	assert.Equal(t, false, res["transmitted"])
	assert.NotEmpty(t, res["frame"])

	code, resp = env.do(t, http.MethodGet, "/api/v1/variables", nil)
	require.Equal(t, http.StatusOK, code)
	vars := dataMap(t, resp)
	assert.Equal(t, "HDMI", vars["active_input"])
	assert.Equal(t, "disconnected", vars["connection_status"])

	code, resp = env.do(t, http.MethodGet, "/api/v1/feedbacks/input_match?option=1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, dataMap(t, resp)["active"])
}

func TestBrightnessEndpoint(t *testing.T) {
	env := newEnv(t, config.DeviceConfig{Model: "mctrl600"}, RouteOptions{})

	v := 40.0
	code, _ := env.do(t, http.MethodPost, "/api/v1/brightness", BrightnessRequest{Value: &v})
	require.Equal(t, http.StatusOK, code)
	v = 15
	code, _ = env.do(t, http.MethodPost, "/api/v1/brightness", BrightnessRequest{Mode: "adjust", Value: &v})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 55.0, env.dev.Store().Snapshot().Brightness)

	code, _ = env.do(t, http.MethodPost, "/api/v1/brightness", map[string]any{"mode": "set"})
	assert.Equal(t, http.StatusBadRequest, code, "缺少 value")
}

func TestErrorMapping(t *testing.T) {
	env := newEnv(t, config.DeviceConfig{Model: "mctrl600"}, RouteOptions{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
	}{
		{"型号不支持输入", http.MethodPost, "/api/v1/input", ChoiceRequest{ID: "0"}, http.StatusUnprocessableEntity},
		{"未知测试画面", http.MethodPost, "/api/v1/test-pattern", ChoiceRequest{ID: "99"}, http.StatusBadRequest},
		{"缺少ID", http.MethodPost, "/api/v1/preset", map[string]any{}, http.StatusBadRequest},
		{"不支持Take", http.MethodPost, "/api/v1/take", nil, http.StatusUnprocessableEntity},
		{"未知反馈", http.MethodGet, "/api/v1/feedbacks/nope", nil, http.StatusBadRequest},
		{"寄存器格式错误", http.MethodPost, "/api/v1/raw/query", RawQueryRequest{Register: "0102", Length: 1}, http.StatusBadRequest},
		{"未知型号", http.MethodPut, "/api/v1/config", ConfigRequest{Model: "vx9000"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestNoModel(t *testing.T) {
	env := newEnv(t, config.DeviceConfig{}, RouteOptions{})

	code, _ := env.do(t, http.MethodGet, "/api/v1/model", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, resp := env.do(t, http.MethodGet, "/api/v1/models", nil)
	require.Equal(t, http.StatusOK, code)
	models := dataMap(t, resp)["models"].([]any)
	assert.Len(t, models, 13)

	code, resp = env.do(t, http.MethodPut, "/api/v1/config", ConfigRequest{Model: "vxPro"})
	require.Equal(t, http.StatusOK, code)
	status := dataMap(t, resp)
	assert.Equal(t, "vxPro", status["model"])
	assert.Equal(t, session.MsgNoHost, status["message"])
}

func TestConnectedRawQuery(t *testing.T) {
	dev := sessiontest.NewDevice(t)
	dev.Reply(nova.RegFirmware, []byte{0x04, 0x01, 0x00, 0x07})
	host, port := dev.Addr()

	env := newEnv(t, config.DeviceConfig{Model: "vx4s", Host: host, Port: port}, RouteOptions{})
	require.Equal(t, session.StatusConnected, env.dev.Status().Status)
	assert.Equal(t, "4.1.0.7", env.dev.Store().Snapshot().Info.FirmwareVersion)

	code, resp := env.do(t, http.MethodPost, "/api/v1/raw/query", RawQueryRequest{Register: "04 00 10 04", Length: 4})
	require.Equal(t, http.StatusOK, code)
	res := dataMap(t, resp)
	assert.Equal(t, true, res["transmitted"])
	assert.Equal(t, "04010007", res["data"])

	code, resp = env.do(t, http.MethodPost, "/api/v1/display-mode", ChoiceRequest{ID: "2"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, dataMap(t, resp)["transmitted"])
	require.Eventually(t, func() bool {
		return dev.Count(nova.RegDisplayMode, false) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestAuthAndRateLimit(t *testing.T) {
	env := newEnv(t, config.DeviceConfig{Model: "vx4s"}, RouteOptions{
		Auth:    middleware.AuthConfig{Enabled: true, APIKeys: []string{"sk_test_123456"}},
		Limiter: outbound.NewRateLimiter(map[outbound.CommandKind]outbound.Limit{
			outbound.KindWrite: {PerSecond: 1, Burst: 2},
			outbound.KindQuery: {PerSecond: 1, Burst: 1},
		}),
	})

	code, _ := env.do(t, http.MethodGet, "/api/v1/state", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = env.do(t, http.MethodGet, "/api/v1/state", nil, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = env.do(t, http.MethodGet, "/api/v1/state", nil, "Authorization", "Bearer sk_test_123456")
	assert.Equal(t, http.StatusOK, code)

	var codes []int
	for i := 0; i < 3; i++ {
		c, _ := env.do(t, http.MethodPost, "/api/v1/scaling", ChoiceRequest{ID: "1"}, "X-API-Key", "sk_test_123456")
		codes = append(codes, c)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// 读命令独立计桶：写命令耗尽后仍可查询一次
	raw := RawQueryRequest{Register: "04 00 10 04", Length: 4}
	code, _ = env.do(t, http.MethodPost, "/api/v1/raw/query", raw, "X-API-Key", "sk_test_123456")
	assert.NotEqual(t, http.StatusTooManyRequests, code)
	code, resp := env.do(t, http.MethodPost, "/api/v1/raw/query", raw, "X-API-Key", "sk_test_123456")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Contains(t, resp.Message, "query")
}

func TestRequestIDPropagation(t *testing.T) {
	env := newEnv(t, config.DeviceConfig{}, RouteOptions{})
	_, resp := env.do(t, http.MethodGet, "/api/v1/state", nil, "X-Request-ID", "trace-1")
	assert.Equal(t, "trace-1", resp.RequestID)
}

func TestEventStream(t *testing.T) {
	env := newEnv(t, config.DeviceConfig{Model: "vx4s"}, RouteOptions{})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hello notify.Event
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "state.snapshot", hello.Event)

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	_, err = env.dev.Control().LoadPreset(context.Background(), "3")
	require.NoError(t, err)

	var ev notify.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, notify.EventStateChanged, ev.Event)
	assert.Equal(t, "active_preset", ev.Data["property"])
	assert.Equal(t, "3", ev.Data["new"])
}

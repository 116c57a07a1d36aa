package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/logging"
	"github.com/taoyao-code/nova-gateway/internal/metrics"
	"github.com/taoyao-code/nova-gateway/internal/outbound"
	"github.com/taoyao-code/nova-gateway/internal/protocol/nova"
)

var (
	// ErrNotConnected 无可用连接；调用方按空结果处理
	ErrNotConnected = errors.New("not connected to device")
	// ErrNoHost 未配置主机
	ErrNoHost = errors.New("no host configured")
	// ErrSuperseded 连接过程中被重新配置或关闭
	ErrSuperseded = errors.New("connection superseded")
)

// Target 连接目标
type Target struct {
	Host string
	Port int
}

// Addr host:port
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// NoStall 关闭解码器等待
const NoStall = -1

// BringUpFunc 连接建立后、进入 Connected 之前执行的查询序列
type BringUpFunc func(ctx context.Context, s *Session) error

// Options 会话参数
type Options struct {
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	WriteTimeout   time.Duration
	// StallLimit 帧头第二字节不匹配时的等待次数：0 取 nova.DefaultStallLimit，NoStall 表示立即丢字节
	StallLimit     int
	BringUp        BringUpFunc
	Logger         *zap.Logger
	Metrics        *metrics.AppMetrics
	// Dial 为空时使用 net.Dialer
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Session 与处理器之间的单条 TCP 会话。
// 独占 socket、接收缓冲与待应答表；查询串行，同一时刻至多一个查询在途。
type Session struct {
	opts Options
	log  *zap.Logger
	m    *metrics.AppMetrics
	corr *outbound.Correlator

	querySem chan struct{}
	writeMu  sync.Mutex

	mu       sync.Mutex
	target   Target
	conn     net.Conn
	adapter  *nova.Adapter
	gen      uint64
	status   StatusInfo
	lastRx   time.Time
	statusFn []func(StatusInfo)
	upFn     []func()
	downFn   []func()
}

// New 创建会话，不立即连接
func New(opts Options) *Session {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	switch {
	case opts.StallLimit == 0:
		opts.StallLimit = nova.DefaultStallLimit
	case opts.StallLimit < 0:
		opts.StallLimit = 0
	}
	s := &Session{
		opts:     opts,
		log:      logging.OrNop(opts.Logger),
		m:        opts.Metrics,
		querySem: make(chan struct{}, 1),
		status:   StatusInfo{Status: StatusDisconnected, Since: time.Now()},
	}
	s.corr = outbound.NewCorrelator(opts.RequestTimeout, outbound.Hooks{
		OnTimeout: func(seq uint8) {
			s.log.Warn("request timeout", zap.Uint8("seq", seq))
			if s.m != nil {
				s.m.RequestTimeouts.Inc()
			}
		},
		OnPending: func(n int) {
			if s.m != nil {
				s.m.PendingRequests.Set(float64(n))
			}
		},
	})
	return s
}

// OnStatus 注册状态变化回调
func (s *Session) OnStatus(fn func(StatusInfo)) {
	s.mu.Lock()
	s.statusFn = append(s.statusFn, fn)
	s.mu.Unlock()
}

// OnConnected 注册进入 Connected 后的回调（启动轮询）
func (s *Session) OnConnected(fn func()) {
	s.mu.Lock()
	s.upFn = append(s.upFn, fn)
	s.mu.Unlock()
}

// OnDisconnected 注册断线回调（停止轮询、复位状态）
func (s *Session) OnDisconnected(fn func()) {
	s.mu.Lock()
	s.downFn = append(s.downFn, fn)
	s.mu.Unlock()
}

// Status 当前状态
func (s *Session) Status() StatusInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Target 当前目标
func (s *Session) Target() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// LastResponse 最近一次收到有效应答的时间
func (s *Session) LastResponse() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRx
}

// Pending 在途请求数
func (s *Session) Pending() int { return s.corr.Pending() }

// DecoderStats 当前连接的解码统计
func (s *Session) DecoderStats() nova.DecoderStats {
	s.mu.Lock()
	a := s.adapter
	s.mu.Unlock()
	if a == nil {
		return nova.DecoderStats{}
	}
	return a.Stats()
}

// Reconfigure 拆除现有连接并切换目标；主机为空时停留在离线编程状态
func (s *Session) Reconfigure(ctx context.Context, t Target) error {
	s.teardown()
	s.mu.Lock()
	s.target = t
	s.mu.Unlock()

	if t.Host == "" {
		s.setStatus(StatusDisconnected, MsgNoHost)
		return nil
	}
	s.setStatus(StatusDisconnected, "disconnected")
	return s.Connect(ctx)
}

// SetOffline 拆除连接并以给定说明停留在 Disconnected
func (s *Session) SetOffline(msg string) {
	s.teardown()
	s.setStatus(StatusDisconnected, msg)
}

// Close 关闭连接，不重连
func (s *Session) Close() error {
	s.teardown()
	s.setStatus(StatusDisconnected, "closed")
	return nil
}

// Connect 建立连接、执行上线查询，成功后进入 Connected。
// 网络错误将状态置为 ConnectionFailure，不自动重试。
func (s *Session) Connect(ctx context.Context) error {
	s.teardown()

	s.mu.Lock()
	t := s.target
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	if t.Host == "" {
		s.setStatus(StatusDisconnected, MsgNoHost)
		return ErrNoHost
	}
	s.setStatus(StatusConnecting, "Connecting to "+t.Host)

	dctx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
	conn, err := s.dial(dctx, t.Addr())
	cancel()
	if err != nil {
		s.fail(gen, err)
		return fmt.Errorf("dial %s: %w", t.Addr(), err)
	}

	adapter := nova.NewAdapter(func(f nova.Frame) { s.onFrame(gen, f) }, nova.WithStallLimit(s.opts.StallLimit))
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrSuperseded
	}
	s.conn = conn
	s.adapter = adapter
	s.mu.Unlock()

	s.log.Info("device connected", zap.String("addr", t.Addr()))
	go s.readLoop(gen, conn, adapter)

	if s.opts.BringUp != nil {
		if err := s.opts.BringUp(ctx, s); err != nil {
			s.fail(gen, err)
			return fmt.Errorf("bring-up: %w", err)
		}
	}

	s.mu.Lock()
	if s.gen != gen || s.conn != conn {
		s.mu.Unlock()
		return ErrSuperseded
	}
	hooks := append([]func(){}, s.upFn...)
	s.mu.Unlock()

	s.setStatus(StatusConnected, "Connected")
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Query 发送读命令并等待应答。查询串行执行。
// 未连接时立即返回空结果与 ErrNotConnected。
func (s *Session) Query(ctx context.Context, f nova.Frame) (outbound.Response, error) {
	select {
	case s.querySem <- struct{}{}:
	case <-ctx.Done():
		return outbound.Response{}, ctx.Err()
	}
	defer func() { <-s.querySem }()

	call, err := s.transmit(f)
	if err != nil {
		return outbound.Response{}, err
	}
	resp, err := call.Wait(ctx)
	if err != nil {
		return outbound.Response{}, err
	}
	return resp, nil
}

// Send 发送写命令，不等待确认。序列号在确认或超时后释放。
func (s *Session) Send(ctx context.Context, f nova.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.transmit(f)
	return err
}

// SendCommand 读命令等待应答，写命令立即返回
func (s *Session) SendCommand(ctx context.Context, f nova.Frame) (outbound.Response, error) {
	if f.IsQuery() {
		return s.Query(ctx, f)
	}
	return outbound.Response{}, s.Send(ctx, f)
}

func (s *Session) transmit(f nova.Frame) (*outbound.Call, error) {
	s.mu.Lock()
	conn, gen := s.conn, s.gen
	s.mu.Unlock()
	if conn == nil {
		s.log.Warn("cannot send command - not connected to device", zap.String("register", f.Register().String()))
		return nil, ErrNotConnected
	}

	call, out, err := s.corr.Begin(f)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	if s.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	_, err = conn.Write(out)
	s.writeMu.Unlock()
	if err != nil {
		s.corr.Cancel(call, err)
		s.fail(gen, err)
		return nil, fmt.Errorf("write frame: %w", err)
	}

	kind := "write"
	if call.Query {
		kind = "query"
	}
	if s.m != nil {
		s.m.FramesTx.WithLabelValues(kind).Inc()
	}
	s.log.Debug("frame sent", zap.String("kind", kind), zap.Uint8("seq", call.Seq), logging.HexBytes("frame", out))
	return call, nil
}

// onFrame 已关联的应答刷新接收时间；上线查询期间收到应答即进入 Connected
func (s *Session) onFrame(gen uint64, f nova.Frame) {
	if s.m != nil {
		s.m.FramesRx.Inc()
	}
	if !s.corr.Resolve(f) {
		if s.m != nil {
			s.m.UnmatchedFrames.Inc()
		}
		s.log.Debug("no listener for frame",
			zap.Uint8("seq", f.Seq()),
			zap.String("register", f.Register().String()),
			logging.HexBytes("data", f.Payload()),
		)
		return
	}
	s.mu.Lock()
	s.lastRx = time.Now()
	var (
		info    StatusInfo
		hooks   []func(StatusInfo)
		changed bool
	)
	if s.gen == gen && s.status.Status == StatusConnecting {
		info, hooks, changed = s.swapStatusLocked(StatusConnected, "Connected")
	}
	s.mu.Unlock()
	if changed {
		s.emitStatus(info, hooks)
	}
	s.log.Debug("frame received", zap.Uint8("seq", f.Seq()), logging.HexBytes("frame", f))
}

func (s *Session) readLoop(gen uint64, conn net.Conn, adapter *nova.Adapter) {
	buf := make([]byte, 4096)
	var prev nova.DecoderStats
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if s.m != nil {
				s.m.BytesRx.Add(float64(n))
			}
			_ = adapter.ProcessBytes(buf[:n])
			prev = s.recordDecoder(prev, adapter.Stats())
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("connection closed by peer: %w", err)
			}
			s.fail(gen, err)
			return
		}
	}
}

func (s *Session) recordDecoder(prev, cur nova.DecoderStats) nova.DecoderStats {
	if s.m == nil {
		return cur
	}
	if d := cur.ChecksumFailures - prev.ChecksumFailures; d > 0 {
		s.m.ChecksumFail.Add(float64(d))
		s.log.Debug("checksum mismatch, frame dropped", zap.Uint64("total", cur.ChecksumFailures))
	}
	if d := cur.DroppedBytes - prev.DroppedBytes; d > 0 {
		s.m.ResyncBytes.Add(float64(d))
	}
	return cur
}

// fail 网络错误：关闭连接、清空待应答表并置为 ConnectionFailure
func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	conn := s.conn
	s.conn = nil
	host := s.target.Host
	hooks := append([]func(){}, s.downFn...)
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.log.Error("network error", zap.String("host", host), zap.Error(err))
	n := s.corr.FailAll(ErrNotConnected)
	if n > 0 {
		s.log.Debug("pending requests failed", zap.Int("count", n))
	}
	s.setStatus(StatusConnectionFailure, "Cannot connect to "+host)
	for _, fn := range hooks {
		fn()
	}
}

// teardown 主动断开，使在途的连接过程与读循环失效
func (s *Session) teardown() {
	s.mu.Lock()
	s.gen++
	conn := s.conn
	s.conn = nil
	hooks := append([]func(){}, s.downFn...)
	s.mu.Unlock()

	if conn == nil {
		return
	}
	_ = conn.Close()
	s.corr.FailAll(ErrNotConnected)
	for _, fn := range hooks {
		fn()
	}
	s.log.Info("device disconnected")
}

func (s *Session) setStatus(st Status, msg string) {
	s.mu.Lock()
	info, hooks, changed := s.swapStatusLocked(st, msg)
	s.mu.Unlock()
	if changed {
		s.emitStatus(info, hooks)
	}
}

// swapStatusLocked 调用方持有 s.mu
func (s *Session) swapStatusLocked(st Status, msg string) (StatusInfo, []func(StatusInfo), bool) {
	if s.status.Status == st && s.status.Message == msg {
		return StatusInfo{}, nil, false
	}
	s.status = StatusInfo{Status: st, Message: msg, Since: time.Now()}
	return s.status, append([]func(StatusInfo){}, s.statusFn...), true
}

func (s *Session) emitStatus(info StatusInfo, hooks []func(StatusInfo)) {
	if s.m != nil {
		s.m.SessionStatus.Set(float64(info.Status))
	}
	s.log.Info("session status", zap.String("status", info.Status.String()), zap.String("message", info.Message))
	for _, fn := range hooks {
		fn(info)
	}
}

func (s *Session) dial(ctx context.Context, addr string) (net.Conn, error) {
	if s.opts.Dial != nil {
		return s.opts.Dial(ctx, "tcp", addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

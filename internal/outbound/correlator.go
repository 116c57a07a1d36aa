package outbound

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/taoyao-code/nova-gateway/internal/protocol/nova"
)

// DefaultTimeout 等待应答的默认超时
const DefaultTimeout = 3 * time.Second

var (
	// ErrRequestTimeout 等待应答超时，序列号已释放
	ErrRequestTimeout = errors.New("request timeout")
	// ErrNoFreeSequence 256 个序列号全部在途
	ErrNoFreeSequence = errors.New("no free sequence id")
)

// Response 关联到请求的应答
type Response struct {
	Seq      uint8
	Register nova.Register
	Payload  []byte
	Frame    nova.Frame
}

// Hex 数据区十六进制串，长度为0时返回空串
func (r Response) Hex() string {
	if len(r.Payload) == 0 {
		return ""
	}
	return hex.EncodeToString(r.Payload)
}

type result struct {
	resp Response
	err  error
}

// Call 一次在途请求。结果通道容量为1，且只会被写入一次。
type Call struct {
	Seq    uint8
	Query  bool
	SentAt time.Time

	ch chan result
	c  *Correlator
}

// Wait 等待应答、超时驱逐或 ctx 取消
func (call *Call) Wait(ctx context.Context) (Response, error) {
	select {
	case r := <-call.ch:
		return r.resp, r.err
	case <-ctx.Done():
		call.c.evict(call, ctx.Err())
		return Response{}, ctx.Err()
	}
}

type waiter struct {
	call  *Call
	timer *time.Timer
}

// Hooks 关联器观测回调
type Hooks struct {
	OnTimeout func(seq uint8)
	OnPending func(n int)
}

// Correlator 序列号分配与应答关联：每个序列号至多一个等待者
type Correlator struct {
	mu      sync.Mutex
	next    uint8
	pending map[uint8]*waiter
	timeout time.Duration
	hooks   Hooks
}

// NewCorrelator 创建关联器，timeout<=0 使用默认值
func NewCorrelator(timeout time.Duration, hooks Hooks) *Correlator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Correlator{
		pending: make(map[uint8]*waiter),
		timeout: timeout,
		hooks:   hooks,
	}
}

// Begin 分配序列号、改写帧并登记等待者。
// 跳过仍有等待者的序列号；返回的帧已重算校验和，可直接发送。
func (c *Correlator) Begin(f nova.Frame) (*Call, nova.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < 256; i++ {
		id := c.next
		c.next++
		if _, busy := c.pending[id]; busy {
			continue
		}
		call := &Call{
			Seq:    id,
			Query:  f.IsQuery(),
			SentAt: time.Now(),
			ch:     make(chan result, 1),
			c:      c,
		}
		w := &waiter{call: call}
		w.timer = time.AfterFunc(c.timeout, func() {
			if c.evict(call, ErrRequestTimeout) && c.hooks.OnTimeout != nil {
				c.hooks.OnTimeout(id)
			}
		})
		c.pending[id] = w
		c.notifyPending()
		return call, f.WithSeq(id), nil
	}
	return nil, nil, ErrNoFreeSequence
}

// Resolve 按帧序列号唤醒等待者；无等待者返回 false
func (c *Correlator) Resolve(f nova.Frame) bool {
	seq := f.Seq()

	c.mu.Lock()
	w, ok := c.pending[seq]
	if ok {
		delete(c.pending, seq)
		w.timer.Stop()
		c.notifyPending()
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	w.call.ch <- result{resp: Response{
		Seq:      seq,
		Register: f.Register(),
		Payload:  f.Payload(),
		Frame:    f,
	}}
	return true
}

// Cancel 撤销尚未发送成功的请求并释放序列号
func (c *Correlator) Cancel(call *Call, err error) {
	c.evict(call, err)
}

// FailAll 以 err 结束全部等待者（断线时调用）
func (c *Correlator) FailAll(err error) int {
	c.mu.Lock()
	waiters := make([]*waiter, 0, len(c.pending))
	for id, w := range c.pending {
		w.timer.Stop()
		waiters = append(waiters, w)
		delete(c.pending, id)
	}
	c.notifyPending()
	c.mu.Unlock()

	for _, w := range waiters {
		w.call.ch <- result{err: err}
	}
	return len(waiters)
}

// Pending 在途请求数
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Outstanding 判断序列号是否在途
func (c *Correlator) Outstanding(seq uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[seq]
	return ok
}

// evict 仅当该序列号仍由 call 占用时移除并投递 err
func (c *Correlator) evict(call *Call, err error) bool {
	c.mu.Lock()
	w, ok := c.pending[call.Seq]
	if !ok || w.call != call {
		c.mu.Unlock()
		return false
	}
	delete(c.pending, call.Seq)
	w.timer.Stop()
	c.notifyPending()
	c.mu.Unlock()

	call.ch <- result{err: err}
	return true
}

// notifyPending 需在持锁时调用
func (c *Correlator) notifyPending() {
	if c.hooks.OnPending != nil {
		c.hooks.OnPending(len(c.pending))
	}
}

// Package sessiontest 提供进程内模拟处理器，供会话、轮询与控制接口测试使用
package sessiontest

import (
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/taoyao-code/nova-gateway/internal/protocol/nova"
)

// Handler 返回应答数据区；ok=false 表示丢弃该请求不作应答
type Handler func(req nova.Frame) (data []byte, ok bool)

// Device 模拟处理器：按寄存器路由请求并回送 AA 55 应答帧。
// 未登记的读命令返回请求长度的全零数据，写命令返回空应答。
type Device struct {
	t  testing.TB
	ln net.Listener

	mu       sync.Mutex
	handlers map[nova.Register]Handler
	requests []nova.Frame
	conns    []net.Conn
	accepted chan struct{}
}

// NewDevice 在回环地址上监听，测试结束时自动关闭
func NewDevice(t testing.TB) *Device {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &Device{
		t:        t,
		ln:       ln,
		handlers: make(map[nova.Register]Handler),
		accepted: make(chan struct{}, 16),
	}
	go d.acceptLoop()
	t.Cleanup(d.Close)
	return d
}

// Addr 监听地址
func (d *Device) Addr() (host string, port int) {
	h, p, _ := net.SplitHostPort(d.ln.Addr().String())
	port, _ = strconv.Atoi(p)
	return h, port
}

// Handle 登记寄存器处理函数
func (d *Device) Handle(reg nova.Register, h Handler) {
	d.mu.Lock()
	d.handlers[reg] = h
	d.mu.Unlock()
}

// Reply 登记固定应答
func (d *Device) Reply(reg nova.Register, data []byte) {
	d.Handle(reg, func(nova.Frame) ([]byte, bool) { return data, true })
}

// Silence 对该寄存器不作应答
func (d *Device) Silence(reg nova.Register) {
	d.Handle(reg, func(nova.Frame) ([]byte, bool) { return nil, false })
}

// Requests 已收到的请求帧
func (d *Device) Requests() []nova.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]nova.Frame, len(d.requests))
	copy(out, d.requests)
	return out
}

// Count 指定寄存器的请求次数
func (d *Device) Count(reg nova.Register, query bool) int {
	n := 0
	for _, f := range d.Requests() {
		if f.Register() == reg && f.IsQuery() == query {
			n++
		}
	}
	return n
}

// Accepted 每接入一个连接发送一次信号
func (d *Device) Accepted() <-chan struct{} { return d.accepted }

// Push 向所有连接写入原始字节
func (d *Device) Push(raw []byte) {
	d.mu.Lock()
	conns := append([]net.Conn(nil), d.conns...)
	d.mu.Unlock()
	for _, c := range conns {
		_, _ = c.Write(raw)
	}
}

// Drop 断开所有连接，监听保持
func (d *Device) Drop() {
	d.mu.Lock()
	conns := d.conns
	d.conns = nil
	d.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// Close 停止监听并断开所有连接
func (d *Device) Close() {
	_ = d.ln.Close()
	d.Drop()
}

func (d *Device) acceptLoop() {
	for {
		c, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conns = append(d.conns, c)
		d.mu.Unlock()
		select {
		case d.accepted <- struct{}{}:
		default:
		}
		go d.serve(c)
	}
}

func (d *Device) serve(c net.Conn) {
	dec := nova.NewStreamDecoder(nova.WithMarker(nova.RequestMarker), nova.WithRequestFraming())
	buf := make([]byte, 1024)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			for _, req := range dec.Feed(buf[:n]) {
				d.respond(c, req)
			}
		}
		if err != nil {
			return
		}
	}
}

func (d *Device) respond(c net.Conn, req nova.Frame) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	h := d.handlers[req.Register()]
	d.mu.Unlock()

	var data []byte
	switch {
	case h != nil:
		var ok bool
		if data, ok = h(req); !ok {
			return
		}
	case req.IsQuery():
		data = make([]byte, req.Length())
	}
	_, _ = c.Write(nova.BuildResponse(req.Seq(), req.Register(), data, req.Destination()))
}

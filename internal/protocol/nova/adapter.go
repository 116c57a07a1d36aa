package nova

import "sync"

// FrameHandler 有效帧回调
type FrameHandler func(Frame)

// Adapter NovaStar 协议适配器：流式解码后将有效帧交给回调
type Adapter struct {
	mu      sync.Mutex
	decoder *StreamDecoder
	handler FrameHandler
}

// NewAdapter 创建适配器
func NewAdapter(h FrameHandler, opts ...DecoderOption) *Adapter {
	return &Adapter{decoder: NewStreamDecoder(opts...), handler: h}
}

// Sniff 初判是否为设备应答（AA 55）
func (a *Adapter) Sniff(prefix []byte) bool {
	return len(prefix) >= 2 && prefix[0] == ResponseMarker[0] && prefix[1] == ResponseMarker[1]
}

// ProcessBytes 处理原始字节流：切分帧并回调
func (a *Adapter) ProcessBytes(p []byte) error {
	a.mu.Lock()
	frames := a.decoder.Feed(p)
	a.mu.Unlock()
	if a.handler == nil {
		return nil
	}
	for _, fr := range frames {
		a.handler(fr)
	}
	return nil
}

// Stats 解码统计
func (a *Adapter) Stats() DecoderStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.decoder.Stats()
}

// Reset 清空解码缓冲
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.decoder.Reset()
	a.mu.Unlock()
}
